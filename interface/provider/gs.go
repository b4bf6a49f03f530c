package provider

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/aoitools/s2prep/common"
	"github.com/aoitools/s2prep/service"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
)

// GSImageProvider implements ImageProvider for Google Storage Sentinel2 buckets
type GSImageProvider struct {
	client  *storage.Client
	buckets []string
}

// NewGSImageProvider creates a new ImageProvider from Google Storage Sentinel2 buckets
func NewGSImageProvider(ctx context.Context) (*GSImageProvider, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGSImageProvider.NewClient: %w", err)
	}
	return &GSImageProvider{client: client}, nil
}

// Name implements ImageProvider
func (ip *GSImageProvider) Name() string {
	return "GoogleStorage"
}

// AddBucket to the provider
// bucket can contain several {IDENTIFIER} that will be replaced according to the information found in the scene name
// IDENTIFIER must be one of SCENE, MISSION_ID, PRODUCT_LEVEL, DATE(YEAR/MONTH/DAY), TIME(HOUR/MINUTE/SECOND), PDGS, ORBIT, TILE (LATITUDE_BAND/GRID_SQUARE/GRANULE_ID)
func (ip *GSImageProvider) AddBucket(bucket string) {
	ip.buckets = append(ip.buckets, bucket)
}

func parseGsURI(uri string) (bucket, object string, err error) {
	trimmed, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("parseGsURI: not a gs:// uri: %s", uri)
	}
	bucket, object, _ = strings.Cut(trimmed, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("parseGsURI: missing bucket: %s", uri)
	}
	return bucket, object, nil
}

// findBlob returns the first blob that matches the url pattern
func (ip *GSImageProvider) findBlob(ctx context.Context, url string) (string, error) {
	bucket, blob, err := parseGsURI(url)
	if err != nil {
		return "", err
	}
	// Create a regexp from blob, replacing "*" by ".*" and "?" by "."
	blobRe := strings.ReplaceAll(strings.ReplaceAll(regexp.QuoteMeta(blob), "\\*", ".*"), "\\?", ".")
	re, err := regexp.Compile(blobRe)
	if err != nil {
		return "", fmt.Errorf("compile[%s]: %w", blobRe, err)
	}
	// Extract the prefix
	if i := strings.Index(blob, "*"); i != -1 {
		blob = blob[:i]
	}
	// Find all the blobs that match the prefix
	it := ip.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: blob})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return "", fmt.Errorf("list[%s/%s*]: %w", bucket, blob, err)
		}
		if idx := re.FindIndex([]byte(attrs.Name)); idx != nil && idx[0] == 0 {
			return "gs://" + bucket + "/" + attrs.Name[:idx[1]], nil
		}
	}
	return url, ErrProductNotFound{url}
}

// Download implements ImageProvider
func (ip *GSImageProvider) Download(ctx context.Context, scene common.Scene, localDir string) error {
	sceneName := scene.SourceID
	if !common.IsSentinel2(sceneName) {
		return fmt.Errorf("GSImageProvider: not a Sentinel2 product: %s", sceneName)
	}
	if len(ip.buckets) == 0 {
		return fmt.Errorf("GSImageProvider: no bucket configured")
	}
	format, err := common.Info(sceneName)
	if err != nil {
		return fmt.Errorf("GSImageProvider: %w", err)
	}

	for _, bucket := range ip.buckets {
		e := func() error {
			url := common.FormatBrackets(bucket, format)
			if strings.Contains(url, "*") {
				var err error
				if url, err = ip.findBlob(ctx, url); err != nil {
					return fmt.Errorf("GSImageProvider.%w", err)
				}
			}
			if filepath.Ext(url) == "."+string(service.ExtensionZIP) {
				if err := ip.downloadZip(ctx, url, localDir); err != nil {
					return fmt.Errorf("GSImageProvider[%s].%w", url, err)
				}
				return nil
			}
			if files, err := ip.downloadDirectory(ctx, url, filepath.Join(localDir, filepath.Base(url))); err != nil {
				return fmt.Errorf("GSImageProvider[%s].%w", url, err)
			} else if len(files) == 0 {
				return ErrProductNotFound{url}
			}
			return nil
		}()

		if err = service.MergeErrors(false, err, e); err == nil {
			break
		}
	}
	return err
}

// downloadToFile fetches a single object to the file
func (ip *GSImageProvider) downloadToFile(ctx context.Context, bucket, object, file string) error {
	r, err := ip.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if service.IsErrNotFound(err) {
			return ErrProductNotFound{"gs://" + bucket + "/" + object}
		}
		return fmt.Errorf("downloadToFile.NewReader: %w", err)
	}
	defer r.Close()

	f, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("downloadToFile.Create: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return service.MakeTemporary(fmt.Errorf("downloadToFile.Copy: %w", err))
	}
	return nil
}

// downloadDirectory fetches all objects prefixed by uri to dstDir
// It returns the list of absolute filenames that were created (i.e with the dstDir prefix)
func (ip *GSImageProvider) downloadDirectory(ctx context.Context, uri string, dstDir string) (files []string, err error) {
	defer func() {
		if err != nil {
			err = service.MakeTemporary(err)
		}
	}()

	bucket, prefix, err := parseGsURI(uri)
	if err != nil {
		return nil, fmt.Errorf("downloadDirectory: %w", err)
	}
	prefix = strings.TrimRight(prefix, "/")
	if dstDir == "" {
		if dstDir, err = os.MkdirTemp("", "gcs"); err != nil {
			return nil, fmt.Errorf("os.MkdirTemp: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(5)
	filemu := sync.Mutex{}

	q := &storage.Query{Prefix: prefix, Versions: false}
	q.SetAttrSelection([]string{"Name"})
	it := ip.client.Bucket(bucket).Objects(ctx, q)
	for {
		objectAttrs, iterr := it.Next()
		if iterr == iterator.Done {
			break
		}
		if iterr != nil {
			g.Wait()
			return nil, fmt.Errorf("bucket iterate: %w", iterr)
		}
		filename := objectAttrs.Name
		if strings.HasPrefix(filename, prefix) {
			filename = filename[len(prefix):]
		}
		if len(filename) > 0 && filename[len(filename)-1] == '/' {
			continue
		}
		filename = filepath.Join(dstDir, filename)
		if ferr := os.MkdirAll(filepath.Dir(filename), 0766); ferr != nil {
			g.Wait()
			return nil, fmt.Errorf("mkdirall %s: %w", filepath.Dir(filename), ferr)
		}
		object := objectAttrs.Name
		g.Go(func() error {
			if err := ip.downloadToFile(gctx, bucket, object, filename); err != nil {
				return err
			}
			filemu.Lock()
			files = append(files, filename)
			filemu.Unlock()
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, fmt.Errorf("downloadDirectory: %w", err)
	}
	return files, nil
}

// downloadZip to dstDir
func (ip *GSImageProvider) downloadZip(ctx context.Context, uri string, dstDir string) error {
	bucket, object, err := parseGsURI(uri)
	if err != nil {
		return fmt.Errorf("downloadZip: %w", err)
	}
	localZip := path.Join(dstDir, filepath.Base(uri))
	if err := ip.downloadToFile(ctx, bucket, object, localZip); err != nil {
		return fmt.Errorf("downloadZip.%w", err)
	}
	defer os.Remove(localZip)
	if err := unarchive(localZip, dstDir); err != nil {
		return service.MakeTemporary(fmt.Errorf("downloadZip.Unarchive: %w", err))
	}
	return nil
}
