package endpoints

import "testing"

func TestBuildSkipsEmptyEntriesAndKeepsPriority(t *testing.T) {
	catalog := Build("", "wss://voice.example.com/stream", LocalAddress)

	if catalog.Len() != 2 {
		t.Fatalf("expected 2 endpoints, got %d", catalog.Len())
	}

	first, ok := catalog.Next(-1)
	if !ok || first.Origin != OriginDefault || first.Address != "wss://voice.example.com/stream" {
		t.Fatalf("expected remote default first, got %+v (ok=%t)", first, ok)
	}

	second, ok := catalog.Next(0)
	if !ok || second.Origin != OriginLocal || second.Address != LocalAddress {
		t.Fatalf("expected local loopback second, got %+v (ok=%t)", second, ok)
	}

	if _, ok := catalog.Next(1); ok {
		t.Fatalf("expected catalog to be exhausted after the second endpoint")
	}
}

func TestNextOutOfRange(t *testing.T) {
	catalog := NewCatalog(Endpoint{Address: "ws://a", Origin: OriginConfigured})

	if _, ok := catalog.Next(-2); ok {
		t.Fatalf("expected no endpoint before the start of the list")
	}
	if _, ok := catalog.Next(5); ok {
		t.Fatalf("expected no endpoint past the end of the list")
	}

	var empty *Catalog
	if _, ok := empty.Next(-1); ok {
		t.Fatalf("expected nil catalog to be empty")
	}
	if empty.Len() != 0 {
		t.Fatalf("expected nil catalog length 0, got %d", empty.Len())
	}
}

func TestNewCatalogTrimsWhitespaceOnlyAddresses(t *testing.T) {
	catalog := NewCatalog(
		Endpoint{Address: "   ", Origin: OriginConfigured},
		Endpoint{Address: " ws://b ", Origin: OriginDefault},
	)

	if catalog.Len() != 1 {
		t.Fatalf("expected whitespace-only address to be skipped, got %d endpoints", catalog.Len())
	}
	if endpoint, _ := catalog.At(0); endpoint.Address != "ws://b" {
		t.Fatalf("expected trimmed address ws://b, got %q", endpoint.Address)
	}
}

func TestAllReturnsCopy(t *testing.T) {
	catalog := NewCatalog(Endpoint{Address: "ws://a", Origin: OriginConfigured})

	all := catalog.All()
	all[0].Address = "ws://mutated"

	if endpoint, _ := catalog.At(0); endpoint.Address != "ws://a" {
		t.Fatalf("expected catalog to stay immutable, got %q", endpoint.Address)
	}
}

func TestFromEnvironment(t *testing.T) {
	t.Setenv(OverrideEnv, "ws://override")
	t.Setenv(DefaultEnv, "")

	catalog := FromEnvironment()
	all := catalog.All()

	if len(all) != 2 {
		t.Fatalf("expected override and local endpoints, got %v", all)
	}
	if all[0].Origin != OriginConfigured || all[0].Address != "ws://override" {
		t.Fatalf("expected override first, got %+v", all[0])
	}
	if all[1].Origin != OriginLocal {
		t.Fatalf("expected local endpoint last, got %+v", all[1])
	}
}
