package scraper

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// mockIllust is one work served by the mock pixiv server
type mockIllust struct {
	ID     int64
	Tags   []string
	Width  int
	Height int
	Pages  int
	// DetailStatus, when set, is returned instead of the detail body
	DetailStatus int
}

// mockPixivServer serves the listing, ajax and image endpoints from memory
type mockPixivServer struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	illusts  map[int64]mockIllust
	listings map[string][]int64
	images   map[string][]byte
	// resets is how many more requests of an image get a truncated body
	resets map[string]int
	// missing images answer 404
	missing map[string]bool
	hits    map[string]int
}

func newMockPixivServer(t *testing.T) *mockPixivServer {
	m := &mockPixivServer{
		t:        t,
		illusts:  map[int64]mockIllust{},
		listings: map[string][]int64{},
		images:   map[string][]byte{},
		resets:   map[string]int{},
		missing:  map[string]bool{},
		hits:     map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ranking.php", m.handleRanking)
	mux.HandleFunc("/ajax/illust/", m.handleAjax)
	mux.HandleFunc("/img/", m.handleImage)

	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockPixivServer) URL() string { return m.server.URL }

// addIllust registers a work on date's listing with its image bytes
func (m *mockPixivServer) addIllust(date string, it mockIllust) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it.Pages == 0 {
		it.Pages = 1
	}
	m.illusts[it.ID] = it
	m.listings[date] = append(m.listings[date], it.ID)
	for p := 0; p < it.Pages; p++ {
		m.images[imageName(it.ID, p)] = []byte(fmt.Sprintf("image %d page %d", it.ID, p))
	}
}

func (m *mockPixivServer) setResets(name string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[name] = n
}

func (m *mockPixivServer) setMissing(name string, missing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.missing[name] = missing
}

func (m *mockPixivServer) hitCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[key]
}

func (m *mockPixivServer) image(name string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.images[name]
}

func imageName(id int64, page int) string {
	return fmt.Sprintf("%d_p%d.jpg", id, page)
}

func (m *mockPixivServer) imageURL(id int64, page int) string {
	return m.server.URL + "/img/" + imageName(id, page)
}

func (m *mockPixivServer) handleRanking(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := q.Get("date")

	m.mu.Lock()
	m.hits["ranking"]++
	ids := m.listings[date]
	var contents []map[string]interface{}
	for i, id := range ids {
		it := m.illusts[id]
		contents = append(contents, map[string]interface{}{
			"illust_id":         id,
			"title":             fmt.Sprintf("work %d", id),
			"tags":              it.Tags,
			"width":             it.Width,
			"height":            it.Height,
			"illust_type":       "0",
			"illust_page_count": strconv.Itoa(it.Pages),
			"rank":              i + 1,
		})
	}
	m.mu.Unlock()

	if q.Get("p") != "" {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"contents":   contents,
		"mode":       q.Get("mode"),
		"content":    q.Get("content"),
		"date":       date,
		"page":       1,
		"prev":       false,
		"next":       false,
		"rank_total": len(contents),
	})
}

func (m *mockPixivServer) handleAjax(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/ajax/illust/")
	parts := strings.Split(rest, "/")
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	m.mu.Lock()
	it, ok := m.illusts[id]
	m.hits["detail"]++
	m.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	var body interface{}
	switch {
	case len(parts) == 1:
		if it.DetailStatus != 0 {
			w.WriteHeader(it.DetailStatus)
			return
		}
		tags := make([]map[string]string, 0, len(it.Tags))
		for _, tag := range it.Tags {
			tags = append(tags, map[string]string{"tag": tag})
		}
		body = map[string]interface{}{
			"illustId":    strconv.FormatInt(id, 10),
			"illustTitle": fmt.Sprintf("work %d", id),
			"pageCount":   it.Pages,
			"width":       it.Width,
			"height":      it.Height,
			"illustType":  0,
			"urls":        map[string]string{"original": m.imageURL(id, 0)},
			"tags":        map[string]interface{}{"tags": tags},
		}
	case parts[1] == "pages":
		var pages []map[string]interface{}
		for p := 0; p < it.Pages; p++ {
			pages = append(pages, map[string]interface{}{
				"urls":   map[string]string{"original": m.imageURL(id, p)},
				"width":  it.Width,
				"height": it.Height,
			})
		}
		body = pages
	default:
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   false,
		"message": "",
		"body":    body,
	})
}

// handleImage serves image bytes. A pending reset answers with a
// Content-Length larger than the body and drops the connection.
func (m *mockPixivServer) handleImage(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/img/")

	m.mu.Lock()
	m.hits[name]++
	data, ok := m.images[name]
	missing := m.missing[name]
	reset := m.resets[name] > 0
	if reset {
		m.resets[name]--
	}
	m.mu.Unlock()

	if !ok || missing {
		http.NotFound(w, r)
		return
	}
	if r.Header.Get("Referer") == "" {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	if reset {
		hj, ok := w.(http.Hijacker)
		if !ok {
			m.t.Error("response writer cannot hijack")
			return
		}
		conn, buf, err := hj.Hijack()
		if err != nil {
			m.t.Errorf("hijack: %v", err)
			return
		}
		defer conn.Close()
		fmt.Fprintf(buf, "HTTP/1.1 200 OK\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(data)+100)
		_, _ = buf.Write(data[:len(data)/2])
		_ = buf.Flush()
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}
