package ipam

import (
	"errors"
	"fmt"
	"testing"

	"wgwarden/internal/models"
)

func TestNextAscending(t *testing.T) {
	p, err := New("10.0.0.0/24")
	if err != nil {
		t.Fatal(err)
	}
	used := []string{}
	want := []string{"10.0.0.2", "10.0.0.3", "10.0.0.4"}
	for _, w := range want {
		got, err := p.Next(used)
		if err != nil {
			t.Fatal(err)
		}
		if got != w {
			t.Fatalf("Next() = %s, want %s", got, w)
		}
		used = append(used, got)
	}
}

func TestNextReusesFreedAddress(t *testing.T) {
	p, err := New("10.0.0.0/24")
	if err != nil {
		t.Fatal(err)
	}
	// .3 освободился, .2 и .4 заняты
	got, err := p.Next([]string{"10.0.0.2", "10.0.0.4"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "10.0.0.3" {
		t.Fatalf("Next() = %s, want 10.0.0.3", got)
	}
}

func TestNextExhausted(t *testing.T) {
	p, err := New("192.168.1.0/29")
	if err != nil {
		t.Fatal(err)
	}
	if p.Capacity() != 5 {
		t.Fatalf("Capacity() = %d, want 5", p.Capacity())
	}
	var used []string
	for i := 0; i < p.Capacity(); i++ {
		a, err := p.Next(used)
		if err != nil {
			t.Fatalf("allocation %d: %v", i, err)
		}
		used = append(used, a)
	}
	if _, err := p.Next(used); !errors.Is(err, models.ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
}

func TestNextDistinct(t *testing.T) {
	p, err := New("10.8.0.0/24")
	if err != nil {
		t.Fatal(err)
	}
	seen := map[string]bool{}
	var used []string
	for i := 0; i < 50; i++ {
		a, err := p.Next(used)
		if err != nil {
			t.Fatal(err)
		}
		if seen[a] {
			t.Fatalf("address %s allocated twice", a)
		}
		if !p.Contains(a) {
			t.Fatalf("address %s outside subnet", a)
		}
		seen[a] = true
		used = append(used, a)
	}
}

func TestServerAddress(t *testing.T) {
	for _, tc := range []struct{ cidr, want string }{
		{"10.0.0.0/24", "10.0.0.1"},
		{"172.16.4.0/22", "172.16.4.1"},
	} {
		p, err := New(tc.cidr)
		if err != nil {
			t.Fatal(err)
		}
		if got := p.ServerAddress(); got != tc.want {
			t.Fatalf("%s: ServerAddress() = %s, want %s", tc.cidr, got, tc.want)
		}
	}
}

func TestNewRejectsBadSubnets(t *testing.T) {
	for _, cidr := range []string{"nonsense", "10.0.0.1/31", "10.0.0.1/32", "fd00::/64"} {
		if _, err := New(cidr); err == nil {
			t.Fatalf("New(%q) succeeded, want error", cidr)
		}
	}
}

func ExamplePool_Next() {
	p, _ := New("10.0.0.0/24")
	addr, _ := p.Next([]string{"10.0.0.2"})
	fmt.Println(addr)
	// Output: 10.0.0.3
}
