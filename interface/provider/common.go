package provider

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/aoitools/s2prep/service"
	"github.com/aoitools/s2prep/service/log"
	"github.com/cavaliercoder/grab"
)

// ErrProductNotFound is an error returned when a product is not found or available
type ErrProductNotFound struct {
	Product string
}

func (e ErrProductNotFound) Error() string {
	return fmt.Sprintf("Product not found or unavailable: %s", e.Product)
}

// ErrUnauthorized is an error returned when the server rejects the credentials
type ErrUnauthorized struct {
	Err error
}

func (e ErrUnauthorized) Error() string {
	return e.Err.Error()
}

func (e ErrUnauthorized) Unwrap() error {
	return e.Err
}

func fmtBytes(bytes int64) string {
	v := float64(bytes)
	switch {
	case v > 1<<30:
		return fmt.Sprintf("%.2fGo", v/(1<<30))
	case v > 1<<20:
		return fmt.Sprintf("%.2fMo", v/(1<<20))
	case v > 1<<10:
		return fmt.Sprintf("%.2fko", v/(1<<10))
	default:
		return fmt.Sprintf("%.2fo", v)
	}
}

// Progress logs the progress of a transfer every progressPeriod percents
type Progress struct {
	ctx    context.Context
	prefix string
	size   int64
	period float64

	mu       sync.Mutex
	bytes    int64
	progress float64
	start    time.Time
}

// NewProgress creates a progress logger for a transfer of size bytes (0 if unknown)
func NewProgress(ctx context.Context, prefix string, size int64, progressPeriod float64) *Progress {
	if progressPeriod > 1 {
		progressPeriod /= 100
	}
	return &Progress{ctx: ctx, prefix: prefix, size: size, period: progressPeriod, start: time.Now()}
}

// UpdateDelta adds delta bytes to the progress
func (p *Progress) UpdateDelta(delta int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bytes += delta
	if p.size <= 0 {
		return
	}
	if progress := float64(p.bytes) / float64(p.size); progress >= p.progress+p.period {
		elapsed := time.Since(p.start).Seconds()
		if elapsed < 1 {
			elapsed = 1
		}
		log.Logger(p.ctx).Sugar().Debugf("%s: %.2f%% %s/%s (%s/s)", p.prefix, 100*progress, fmtBytes(p.bytes), fmtBytes(p.size), fmtBytes(int64(float64(p.bytes)/elapsed)))
		p.progress = progress
	}
}

func displayProgress(ctx context.Context, prefix string, resp *grab.Response, progressPeriod float64) {
	t := time.NewTicker(time.Second)
	defer t.Stop()

	progress, lastBytes, seconds := 0.0, int64(0), int64(0)
	for {
		select {
		case <-t.C:
			seconds++
			if resp.Progress() > progress {
				log.Logger(ctx).Sugar().Debugf("%s: %.2f%% %s/%s (%s/s)", prefix, 100*resp.Progress(), fmtBytes(resp.BytesComplete()), fmtBytes(resp.Size), fmtBytes((resp.BytesComplete()-lastBytes)/seconds))
				seconds = 0
				progress += progressPeriod
				lastBytes = resp.BytesComplete()
			}

		case <-resp.Done:
			return
		}
	}
}

// downloadZip downloads url to localDir/sceneName.zip with the given client and unarchives it
func downloadZip(ctx context.Context, client *grab.Client, url, localDir, sceneName, provider string) error {
	localZip := sceneFilePath(localDir, sceneName, service.ExtensionZIP)
	req, err := grab.NewRequest(localZip, url)
	if err != nil {
		return fmt.Errorf("downloadZip.NewRequest: %w", err)
	}
	req = req.WithContext(ctx)

	if err := download(ctx, client, req, provider+":"+sceneName); err != nil {
		return fmt.Errorf("downloadZip.%w", err)
	}

	defer os.Remove(localZip)
	if err := unarchive(localZip, localDir); err != nil {
		return fmt.Errorf("downloadZip.Unarchive: %w", err)
	}
	return nil
}

func downloadZipWithAuth(ctx context.Context, url, localDir, sceneName, provider string, user, pword *string, copyAuthOnRedirect bool) error {
	localZip := sceneFilePath(localDir, sceneName, service.ExtensionZIP)
	req, err := grab.NewRequest(localZip, url)
	if err != nil {
		return fmt.Errorf("downloadZipWithAuth.NewRequest: %w", err)
	}
	req = req.WithContext(ctx)

	// If Basic Auth
	if user != nil && pword != nil {
		req.HTTPRequest.SetBasicAuth(*user, *pword)
	}

	client := grab.NewClient()
	if copyAuthOnRedirect {
		client.HTTPClient.CheckRedirect = checkRedirectAndCopyAuth
	}
	if err := download(ctx, client, req, provider+":"+sceneName); err != nil {
		return fmt.Errorf("downloadZipWithAuth.%w", err)
	}

	defer os.Remove(localZip)
	if err := unarchive(localZip, localDir); err != nil {
		return fmt.Errorf("downloadZipWithAuth.Unarchive: %w", err)
	}
	return nil
}

func checkRedirectAndCopyAuth(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}
	if auth, ok := via[0].Header["Authorization"]; ok {
		req.Header.Add("Authorization", auth[0])
	}
	return nil
}

// download a file with display every 5%
func download(ctx context.Context, client *grab.Client, req *grab.Request, displayPrefix string) error {
	if client == nil {
		client = grab.NewClient()
	}
	resp := client.Do(req)

	displayProgress(ctx, displayPrefix, resp, 0.05)

	if err := resp.Err(); err != nil {
		err = fmt.Errorf("download[%s]: %w", req.URL(), err)
		if resp.HTTPResponse == nil {
			return service.MakeTemporary(err)
		}
		switch resp.HTTPResponse.StatusCode {
		case 401, 403:
			return ErrUnauthorized{err}
		case 404, 410:
			return ErrProductNotFound{req.URL().String()}
		case 408, 429, 500, 501, 502, 503, 504:
			return service.MakeTemporary(err)
		default:
			return err
		}
	}
	return nil
}

// unarchive file with basic check. All errors are temporary.
func unarchive(localZip, localDir string) error {
	tmpdir, err := os.MkdirTemp(localDir, filepath.Base(localZip))
	if err != nil {
		return service.MakeTemporary(err)
	}
	defer os.RemoveAll(tmpdir)
	if err := service.Unzip(localZip, tmpdir); err != nil {
		return service.MakeTemporary(err)
	}
	files, err := os.ReadDir(tmpdir)
	if err != nil {
		return service.MakeTemporary(err)
	}
	if len(files) == 0 {
		return service.MakeTemporary(fmt.Errorf("empty zip"))
	}
	for _, f := range files {
		os.Rename(filepath.Join(tmpdir, f.Name()), filepath.Join(localDir, f.Name()))
	}
	return nil
}

// sceneFilePath returns the path of the scene, given the directory and the sceneid
func sceneFilePath(dir, sceneID string, ext service.Extension) string {
	return path.Join(dir, service.ProductFileName(sceneID, ext))
}
