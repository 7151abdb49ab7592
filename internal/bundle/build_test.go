package bundle

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"testing"
)

func TestBuildDeterministic(t *testing.T) {
	conf := []byte("[Interface]\nAddress = 10.0.0.2/32\n")
	png := []byte("\x89PNGfake")

	a, sumA, err := Build("alice", conf, png)
	if err != nil {
		t.Fatal(err)
	}
	b, sumB, err := Build("alice", conf, png)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) || sumA != sumB {
		t.Fatal("same inputs produced different archives")
	}
}

func TestBuildContents(t *testing.T) {
	conf := []byte("conf-data")
	png := []byte("png-data")
	data, _, err := Build("alice", conf, png)
	if err != nil {
		t.Fatal(err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	tr := tar.NewReader(gz)

	got := map[string][]byte{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		body, err := io.ReadAll(tr)
		if err != nil {
			t.Fatal(err)
		}
		got[hdr.Name] = body
	}
	if !bytes.Equal(got["alice.conf"], conf) {
		t.Fatalf("alice.conf = %q", got["alice.conf"])
	}
	if !bytes.Equal(got["alice.png"], png) {
		t.Fatalf("alice.png = %q", got["alice.png"])
	}
}

func TestBuildWithoutQR(t *testing.T) {
	data, _, err := Build("bob", []byte("conf"), nil)
	if err != nil {
		t.Fatal(err)
	}
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	tr := tar.NewReader(gz)
	n := 0
	for {
		if _, err := tr.Next(); err == io.EOF {
			break
		} else if err != nil {
			t.Fatal(err)
		}
		n++
	}
	if n != 1 {
		t.Fatalf("archive has %d entries, want 1", n)
	}
}
