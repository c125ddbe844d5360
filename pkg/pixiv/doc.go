// Package pixiv is the HTTP client for pixiv's ranking listing, the ajax
// illust endpoints and the image CDN.
//
// The client performs exactly one request per call. Pacing and retries belong
// to the caller: every call is meant to be submitted through the scheduler,
// and transfers are wrapped in retry.Do. Failures come back as typed
// *errors.Error values so the scheduler can count rate-limit responses.
package pixiv
