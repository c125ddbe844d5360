package pixiv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRankingURL(t *testing.T) {
	assert.Equal(t,
		"https://www.pixiv.net/ranking.php?content=illust&date=20240101&format=json&mode=daily",
		RankingURL(BaseURL, "20240101", "daily", "illust", 1))
	assert.Equal(t,
		"https://www.pixiv.net/ranking.php?content=all&date=20240101&format=json&mode=weekly&p=2",
		RankingURL(BaseURL+"/", "20240101", "weekly", "all", 2))
	assert.Equal(t,
		"https://www.pixiv.net/ranking.php?content=all&format=json&mode=daily",
		RankingURL(BaseURL, "", "daily", "all", 0))
}

func TestIllustURLs(t *testing.T) {
	assert.Equal(t, "https://www.pixiv.net/ajax/illust/42", IllustURL(BaseURL, 42))
	assert.Equal(t, "https://www.pixiv.net/ajax/illust/42/pages", PagesURL(BaseURL, 42))
	assert.Equal(t, "https://www.pixiv.net/ajax/illust/42/ugoira_meta", UgoiraMetaURL(BaseURL, 42))
	assert.Equal(t, "https://www.pixiv.net/artworks/42", ArtworkURL(42))
}

func TestExtFromURL(t *testing.T) {
	tests := map[string]string{
		"https://i.pximg.net/img-original/img/2024/01/01/00/00/00/1_p0.png":  "png",
		"https://i.pximg.net/img-master/img/2024/01/01/1_p0_master1200.JPG": "jpg",
		"https://i.pximg.net/x/1_p0.gif?ts=1":                               "gif",
		"https://i.pximg.net/x/noext":                                       "jpg",
	}
	for in, want := range tests {
		assert.Equal(t, want, ExtFromURL(in), in)
	}
}

func TestModesAndContents(t *testing.T) {
	assert.True(t, IsValidMode("daily"))
	assert.True(t, IsValidMode("weekly_r18"))
	assert.False(t, IsValidMode("hourly"))
	assert.True(t, IsValidContent("ugoira"))
	assert.False(t, IsValidContent("novel"))
}

func TestPageRef(t *testing.T) {
	var p PageRef
	assert.NoError(t, p.UnmarshalJSON([]byte("false")))
	assert.Equal(t, PageRef(0), p)
	assert.NoError(t, p.UnmarshalJSON([]byte("3")))
	assert.Equal(t, PageRef(3), p)
	assert.NoError(t, p.UnmarshalJSON([]byte(`"4"`)))
	assert.Equal(t, PageRef(4), p)
	assert.Error(t, p.UnmarshalJSON([]byte("true")))
}
