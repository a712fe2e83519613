package cli

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"net"
	"os"
	"path/filepath"
	"strings"

	"chatlink/internal/media"
	"chatlink/internal/tlsdiag"

	_ "image/gif"
	_ "image/png"
)

var extMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".mp4":  "video/mp4",
	".pdf":  "application/pdf",
}

// upload sends one local file. Images are recompressed to the configured
// size budget first; other supported types go up as-is.
func (a *App) upload(ctx context.Context, path string) {
	mimeType, ok := extMIME[strings.ToLower(filepath.Ext(path))]
	if !ok {
		fmt.Fprintf(a.out, "Unsupported file type: %s\n", filepath.Ext(path))
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
		return
	}

	if strings.HasPrefix(mimeType, "image/") {
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			fmt.Fprintf(a.out, "error: decoding image: %v\n", err)
			return
		}
		data, err = media.Compress(img, a.cfg.CompressTargetKB)
		if err != nil {
			fmt.Fprintf(a.out, "error: %v\n", err)
			return
		}
		mimeType = "image/jpeg"
	}

	item, err := media.NewItem(data, mimeType)
	if err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
		return
	}

	ref, err := a.uploads.UploadOne(ctx, item)
	if err != nil {
		fmt.Fprintf(a.out, "Upload failed: %v\n", err)
		return
	}
	fmt.Fprintf(a.out, "Uploaded %s -> %s\n", path, ref.StorageURL)
}

// splitTarget resolves a user-typed "host", "host:port", "ip6" or
// "[ip6]:port" into a dial address and the bare host name.
func splitTarget(target string) (addr, host string) {
	h, _, err := net.SplitHostPort(target)
	if err != nil {
		// no port present (including bare IPv6 literals): default to 443
		return net.JoinHostPort(target, "443"), target
	}
	return target, h
}

func (a *App) tlsReport(target string) {
	addr, host := splitTarget(target)

	report, err := tlsdiag.Probe(addr, host)
	if err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
		return
	}

	fmt.Fprintf(a.out, "Chain for %s: %s\n", host, strings.Join(report.SubjectCNs, " <- "))
	for _, p := range report.Policies {
		status := "PASS"
		if !p.Passed {
			status = "FAIL " + p.Error
		}
		fmt.Fprintf(a.out, "  %-14s %s\n", p.Policy, status)
	}
	if tlsdiag.LenientEnabled {
		fmt.Fprintln(a.out, "  lenient trust bypass is COMPILED IN (devtrust build)")
	}
}
