// Package fetcher downloads the monthly trip-record files and lands them in the object store.
package fetcher

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/relloyd/taxipipe/aws/s3"
	"github.com/relloyd/taxipipe/constants"
	"github.com/relloyd/taxipipe/feed"
	"github.com/relloyd/taxipipe/logger"
	"github.com/relloyd/taxipipe/period"
	"github.com/relloyd/taxipipe/pipeerr"
)

type Config struct {
	Log          logger.Logger
	Store        s3.Client     // landing bucket.
	BaseURL      string        // source URL without the file name.
	Timeout      time.Duration // bound on each download including the body.
	KeyLayout    string        // constants.KeyLayoutPartitioned or constants.KeyLayoutFlat.
	SkipExisting bool          // report existing objects instead of downloading again.
	Feeds        []feed.Name   // feeds fetched by FetchAndLand; defaults to feed.All.
}

// LandedObject describes a file written to (or found in) the landing bucket.
type LandedObject struct {
	Feed      feed.Name `json:"feed"`
	SourceURL string    `json:"sourceUrl"`
	Key       string    `json:"key"`
	ETag      string    `json:"etag"`
	Size      int64     `json:"size"`
	Skipped   bool      `json:"skipped"`
}

type Fetcher struct {
	cfg  Config
	http *resty.Client
}

// New returns a Fetcher using cfg with defaults applied.
func New(cfg Config) (*Fetcher, error) {
	if cfg.Log == nil {
		return nil, errors.New("fetcher requires a logger")
	}
	if cfg.Store == nil {
		return nil, errors.New("fetcher requires an object store client")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = constants.DefaultSourceBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Duration(constants.DefaultFetchTimeoutSeconds) * time.Second
	}
	if cfg.KeyLayout == "" {
		cfg.KeyLayout = constants.KeyLayoutPartitioned
	}
	if len(cfg.Feeds) == 0 {
		cfg.Feeds = feed.All
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", constants.ServiceName)
	return &Fetcher{cfg: cfg, http: client}, nil
}

// FetchFeed downloads the file for feed n in period p and writes it to its storage key,
// replacing any existing object.
func (f *Fetcher) FetchFeed(ctx context.Context, n feed.Name, p period.Period) (LandedObject, error) {
	d := feed.New(n, p)
	retval := LandedObject{
		Feed:      n,
		SourceURL: d.SourceURL(f.cfg.BaseURL),
		Key:       d.StorageKey(f.cfg.KeyLayout),
	}
	log := f.cfg.Log.WithField("feed", string(n)).WithField("period", p.String())
	if f.cfg.SkipExisting {
		o, err := f.cfg.Store.Head(ctx, retval.Key)
		switch {
		case err == nil:
			log.Info("object ", retval.Key, " already landed; skipping download")
			retval.ETag, retval.Size, retval.Skipped = o.ETag, o.Size, true
			return retval, nil
		case !errors.Is(err, s3.ErrKeyNotFound):
			log.Warn("unable to check for existing object ", retval.Key, ": ", err)
		}
	}
	log.Info("downloading ", retval.SourceURL)
	resp, err := f.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(retval.SourceURL)
	if err != nil {
		return retval, &pipeerr.NetworkError{Feed: string(n), URL: retval.SourceURL, Err: err}
	}
	body := resp.RawBody()
	defer func() {
		_ = body.Close()
	}()
	if !resp.IsSuccess() {
		return retval, &pipeerr.NetworkError{
			Feed:       string(n),
			URL:        retval.SourceURL,
			StatusCode: resp.StatusCode(),
			Err:        errors.New(resp.Status()),
		}
	}
	r := &readErrRecorder{r: body}
	o, err := f.cfg.Store.Upload(ctx, retval.Key, r)
	if err != nil {
		if r.err != nil { // if the source stream broke mid-transfer...
			return retval, &pipeerr.NetworkError{Feed: string(n), URL: retval.SourceURL, StatusCode: resp.StatusCode(), Err: r.err}
		}
		return retval, &pipeerr.StorageWriteError{Feed: string(n), Key: retval.Key, Err: err}
	}
	retval.ETag, retval.Size = o.ETag, o.Size
	log.Info("landed ", retval.Key, " (", retval.Size, " bytes)")
	return retval, nil
}

// FetchAndLand attempts every configured feed for period p concurrently.
// It returns the objects that landed, in feed order, and an aggregate of any failures.
func (f *Fetcher) FetchAndLand(ctx context.Context, p period.Period) ([]LandedObject, error) {
	var g multierror.Group
	var mu sync.Mutex
	landed := make(map[feed.Name]LandedObject, len(f.cfg.Feeds))
	for _, n := range f.cfg.Feeds {
		n := n
		g.Go(func() error {
			o, err := f.FetchFeed(ctx, n, p)
			if err != nil {
				return err
			}
			mu.Lock()
			landed[n] = o
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait().ErrorOrNil()
	retval := make([]LandedObject, 0, len(landed))
	for _, n := range f.cfg.Feeds {
		if o, ok := landed[n]; ok {
			retval = append(retval, o)
		}
	}
	return retval, err
}

// readErrRecorder remembers the first read error from the source body.
type readErrRecorder struct {
	r   io.Reader
	err error
}

func (x *readErrRecorder) Read(p []byte) (int, error) {
	n, err := x.r.Read(p)
	if err != nil && err != io.EOF && x.err == nil {
		x.err = err
	}
	return n, err
}
