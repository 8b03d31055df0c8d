package anthropic

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/rhuss/claudepipe/pkg/api"
)

func imagePart(url string) api.ContentPart {
	return api.ContentPart{Type: api.PartImageURL, ImageURL: &api.URLRef{URL: url}}
}

func pngDataURI(b64Len int) string {
	return "data:image/png;base64," + strings.Repeat("A", b64Len)
}

func TestImageBlock(t *testing.T) {
	t.Run("inline png", func(t *testing.T) {
		b, err := imageBlock(imagePart("data:image/png;base64,iVBORw0KGgo="))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var src Source
		if err := json.Unmarshal(b.Source, &src); err != nil {
			t.Fatalf("source: %v", err)
		}
		if b.Type != "image" || src.Type != "base64" || src.MediaType != "image/png" || src.Data != "iVBORw0KGgo=" {
			t.Errorf("block = %+v source = %+v", b, src)
		}
	})

	t.Run("remote url", func(t *testing.T) {
		b, err := imageBlock(imagePart("https://example.com/cat.jpg"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(b.Source) != `{"type":"url","url":"https://example.com/cat.jpg"}` {
			t.Errorf("source = %s", b.Source)
		}
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := imageBlock(imagePart("data:image/bmp;base64,Qk0="))
		if err == nil || err.Message != "Unsupported media type: image/bmp" {
			t.Fatalf("err = %v", err)
		}
		if err.Type != api.ErrorTypeInvalidRequest {
			t.Errorf("Type = %q", err.Type)
		}
	})

	t.Run("oversize cites computed size", func(t *testing.T) {
		_, err := imageBlock(imagePart(pngDataURI(7_000_000)))
		if err == nil {
			t.Fatal("expected error")
		}
		want := "Image size exceeds 5.0MB limit: 5.01MB"
		if err.Message != want {
			t.Errorf("Message = %q, want %q", err.Message, want)
		}
	})

	t.Run("missing separator", func(t *testing.T) {
		_, err := imageBlock(imagePart("data:image/png;base64"))
		if err == nil || !strings.Contains(err.Message, "malformed data URI") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("cache control kept", func(t *testing.T) {
		p := imagePart("https://example.com/a.png")
		p.CacheControl = &api.CacheControl{Type: "ephemeral"}
		b, err := imageBlock(p)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if b.CacheControl == nil || b.CacheControl.Type != "ephemeral" {
			t.Errorf("CacheControl = %+v", b.CacheControl)
		}
	})
}

func TestPDFBlock(t *testing.T) {
	pdf := func(url string) api.ContentPart {
		return api.ContentPart{Type: api.PartPDFURL, PDFURL: &api.URLRef{URL: url}}
	}

	b, err := pdfBlock(pdf("data:application/pdf;base64,JVBERi0="))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Type != "document" || !strings.Contains(string(b.Source), `"media_type":"application/pdf"`) {
		t.Errorf("block = %+v", b)
	}

	b, err = pdfBlock(pdf("https://example.com/paper.pdf"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(b.Source) != `{"type":"url","url":"https://example.com/paper.pdf"}` {
		t.Errorf("source = %s", b.Source)
	}

	// 45_000_000 * 3/4 = 33_750_000 bytes = 32.19MB
	_, err = pdfBlock(pdf("data:application/pdf;base64," + strings.Repeat("A", 45_000_000)))
	if err == nil || err.Message != "PDF size exceeds 32.0MB limit: 32.19MB" {
		t.Errorf("err = %v", err)
	}
}

func TestValidateImageTotals(t *testing.T) {
	t.Run("aggregate exceeds even when each image fits", func(t *testing.T) {
		// Each image is 6_900_000 * 3/4 = 5_175_000 bytes, under 5MiB.
		img := pngDataURI(6_900_000)
		if _, err := imageBlock(imagePart(img)); err != nil {
			t.Fatalf("single image should pass: %v", err)
		}
		var parts []api.ContentPart
		for range 21 {
			parts = append(parts, imagePart(img))
		}
		msgs := []api.ChatMessage{{Role: api.RoleUser, Content: api.PartsContent(parts...)}}

		err := ValidateImageTotals(msgs)
		if err == nil {
			t.Fatal("expected aggregate size error")
		}
		want := "Total image size exceeds 100.0MB limit: 103.64MB"
		if err.Message != want {
			t.Errorf("Message = %q, want %q", err.Message, want)
		}
	})

	t.Run("aggregate across messages", func(t *testing.T) {
		img := pngDataURI(6_900_000)
		var msgs []api.ChatMessage
		for range 21 {
			msgs = append(msgs, api.ChatMessage{Role: api.RoleUser, Content: api.PartsContent(imagePart(img))})
		}
		if err := ValidateImageTotals(msgs); err == nil {
			t.Fatal("expected aggregate size error")
		}
	})

	t.Run("too many images", func(t *testing.T) {
		var parts []api.ContentPart
		for range 101 {
			parts = append(parts, imagePart("data:image/png;base64,AAAA"))
		}
		err := ValidateImageTotals([]api.ChatMessage{{Role: api.RoleUser, Content: api.PartsContent(parts...)}})
		if err == nil || err.Message != "Too many images: 101. Maximum is 100." {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("remote images not counted", func(t *testing.T) {
		var parts []api.ContentPart
		for range 150 {
			parts = append(parts, imagePart("https://example.com/a.png"))
		}
		if err := ValidateImageTotals([]api.ChatMessage{{Role: api.RoleUser, Content: api.PartsContent(parts...)}}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
