// Package imageprobe resolves the natural size of screen images by fetching
// them from the tray's HTTP server and decoding only the image header.
package imageprobe

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"trackscreen/carousel"
	"trackscreen/loop"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	defaultTimeout = 10 * time.Second
	// maxHeaderBytes bounds how much of a response is read to find dimensions.
	maxHeaderBytes = 1 << 20
)

var ErrStatus = errors.New("unexpected status")

// Prober fetches image refs relative to Base and reports their dimensions on
// the owning loop.
type Prober struct {
	Base   *url.URL
	Client *http.Client
	Poster loop.Poster
	ctx    context.Context
}

// New builds a prober for the tray server at base (for example
// "http://localhost:3489"). Requests are abandoned when ctx ends.
func New(ctx context.Context, base string, poster loop.Poster) (*Prober, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("imageprobe: parse base %q: %w", base, err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Prober{
		Base:   u,
		Client: &http.Client{Timeout: defaultTimeout},
		Poster: poster,
		ctx:    ctx,
	}, nil
}

// HTTPBase maps the push endpoint host and port onto the matching HTTP origin.
func HTTPBase(host string, port int) string {
	if host == "" {
		host = "localhost"
	}
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

// Load implements carousel.Loader. The probe runs on its own goroutine and
// done is posted to the loop; if the loop has stopped the result is dropped.
func (p *Prober) Load(src string, done func(carousel.Size, error)) {
	go func() {
		size, err := p.Probe(p.ctx, src)
		if p.Poster == nil {
			done(size, err)
			return
		}
		p.Poster.Post(func() { done(size, err) })
	}()
}

// Probe fetches ref and decodes its header.
func (p *Prober) Probe(ctx context.Context, ref string) (carousel.Size, error) {
	target, err := p.resolve(ref)
	if err != nil {
		return carousel.Size{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return carousel.Size{}, fmt.Errorf("imageprobe: request %s: %w", target, err)
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return carousel.Size{}, fmt.Errorf("imageprobe: fetch %s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return carousel.Size{}, fmt.Errorf("imageprobe: fetch %s: %w %d", target, ErrStatus, resp.StatusCode)
	}
	cfg, format, err := image.DecodeConfig(io.LimitReader(resp.Body, maxHeaderBytes))
	if err != nil {
		return carousel.Size{}, fmt.Errorf("imageprobe: decode %s: %w", target, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return carousel.Size{}, fmt.Errorf("imageprobe: %s %s has no dimensions", format, target)
	}
	return carousel.Size{Width: cfg.Width, Height: cfg.Height}, nil
}

func (p *Prober) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("imageprobe: parse ref %q: %w", ref, err)
	}
	if p.Base == nil || u.IsAbs() {
		return u.String(), nil
	}
	return p.Base.ResolveReference(u).String(), nil
}
