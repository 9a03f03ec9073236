package mime

import "testing"

func TestTypeForKnownExtensions(t *testing.T) {
	cases := map[string]string{
		"index.html":  "text/html; charset=utf-8",
		"app.js":      "application/javascript; charset=utf-8",
		"photo.PNG":   defaultType, // extension matching is case-sensitive, matching filepath.Ext
		"photo.png":   "image/png",
		"archive.zip": "application/zip",
	}

	for name, want := range cases {
		if got := TypeFor(name); got != want {
			t.Errorf("TypeFor(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestTypeForUnknownExtensionFallsBack(t *testing.T) {
	if got := TypeFor("binary.xyz"); got != defaultType {
		t.Fatalf("TypeFor(unknown) = %q, want %q", got, defaultType)
	}
}

func TestCompressibleDistinguishesTextFromBinary(t *testing.T) {
	if !Compressible(TypeFor("style.css")) {
		t.Fatal("expected CSS to be compressible")
	}
	if Compressible(TypeFor("photo.png")) {
		t.Fatal("expected PNG to not be compressible")
	}
}
