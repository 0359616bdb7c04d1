package web

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

const (
	imageFetchTimeout = 15 * time.Second
	maxImageBytes     = 10 << 20
	maxImagePixels    = 16_000_000
	maxImageRedirects = 5
	defaultImageWidth = 480
	maxImageWidth     = 1200
)

var errImageHostNotAllowed = errors.New("image host is not allowed")

func (s *Server) imageHostAllowed(u *url.URL) bool {
	return s.imageHosts["*"] || s.imageHosts[u.Hostname()]
}

// newImageClient returns the client used by the image proxy. Redirects are
// followed only to allowed hosts.
func (s *Server) newImageClient() *http.Client {
	return &http.Client{
		Timeout: imageFetchTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxImageRedirects {
				return fmt.Errorf("stopped after %d redirects", maxImageRedirects)
			}
			if !s.imageHostAllowed(req.URL) {
				return fmt.Errorf("redirect to %s: %w", req.URL.Hostname(), errImageHostNotAllowed)
			}
			return nil
		},
	}
}

// handleImage fetches a remote recipe image and serves it scaled down to
// the requested width.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	src, err := url.Parse(r.URL.Query().Get("url"))
	if err != nil || (src.Scheme != "http" && src.Scheme != "https") || src.Host == "" {
		http.Error(w, "url parameter must be an absolute http(s) URL", http.StatusBadRequest)
		return
	}
	if !s.imageHostAllowed(src) {
		http.Error(w, fmt.Sprintf("images from %s are not allowed", src.Hostname()), http.StatusForbidden)
		return
	}

	width := defaultImageWidth
	if v := r.URL.Query().Get("w"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "w must be a positive integer", http.StatusBadRequest)
			return
		}
		width = min(n, maxImageWidth)
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, src.String(), nil)
	if err != nil {
		http.Error(w, "Failed to build image request", http.StatusBadRequest)
		return
	}
	resp, err := s.imageClient.Do(req)
	if errors.Is(err, errImageHostNotAllowed) {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	if err != nil {
		log.Printf("Error fetching image %s: %v", src, err)
		http.Error(w, "Failed to fetch image", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		http.Error(w, fmt.Sprintf("Image source answered %d", resp.StatusCode), http.StatusBadGateway)
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		http.Error(w, "Failed to read image", http.StatusBadGateway)
		return
	}

	// The pixel buffer is sized from the header, so check it before decoding.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		http.Error(w, "Failed to decode image", http.StatusUnsupportedMediaType)
		return
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxImagePixels {
		http.Error(w, fmt.Sprintf("Image of %dx%d pixels is too large", cfg.Width, cfg.Height), http.StatusUnprocessableEntity)
		return
	}

	img, format, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		http.Error(w, "Failed to decode image", http.StatusUnsupportedMediaType)
		return
	}

	if img.Bounds().Dx() > width {
		// height 0 keeps the aspect ratio
		img = resize.Resize(uint(width), 0, img, resize.Lanczos3)
	}

	w.Header().Set("Cache-Control", "public, max-age=86400")
	switch format {
	case "png":
		w.Header().Set("Content-Type", "image/png")
		err = png.Encode(w, img)
	default:
		// jpeg and webp are both served as jpeg
		w.Header().Set("Content-Type", "image/jpeg")
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: 85})
	}
	if err != nil {
		log.Printf("Error encoding image %s: %v", src, err)
	}
}
