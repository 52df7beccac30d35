package otp

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"medicare_service/internal/models"
)

func TestGenerateStaysInRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		code, err := Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 digits, got %q", code)
		}
		n, err := strconv.Atoi(code)
		if err != nil {
			t.Fatalf("code %q is not numeric", code)
		}
		if n < 100000 || n > 999999 {
			t.Fatalf("code %d out of range", n)
		}
	}
}

func TestKeyIsRoleScoped(t *testing.T) {
	p := Key(models.RolePatient, "a@x.com")
	d := Key(models.RoleDoctor, "a@x.com")
	if p == d {
		t.Fatalf("expected distinct keys, both %q", p)
	}
}

func TestMemoryStoreVerifyConsumesOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(5)

	if err := s.Save(ctx, "a@x.com", "123456", time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}

	ok, _ := s.Verify(ctx, "a@x.com", "123456")
	if !ok {
		t.Fatal("first verification should succeed")
	}

	ok, _ = s.Verify(ctx, "a@x.com", "123456")
	if ok {
		t.Fatal("second verification of the same code must fail")
	}
}

func TestMemoryStoreWrongEmailOrCode(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(5)
	_ = s.Save(ctx, "a@x.com", "123456", time.Minute)

	if ok, _ := s.Verify(ctx, "b@x.com", "123456"); ok {
		t.Fatal("code must only verify for the email it was issued to")
	}
	if ok, _ := s.Verify(ctx, "a@x.com", "654321"); ok {
		t.Fatal("mismatched code must fail")
	}
	// failed attempt leaves the challenge live
	if ok, _ := s.Verify(ctx, "a@x.com", "123456"); !ok {
		t.Fatal("challenge should survive a single failed attempt")
	}
}

func TestMemoryStoreSaveOverwrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(5)
	_ = s.Save(ctx, "a@x.com", "111111", time.Minute)
	_ = s.Save(ctx, "a@x.com", "222222", time.Minute)

	if ok, _ := s.Verify(ctx, "a@x.com", "111111"); ok {
		t.Fatal("old code must be invalid after reissue")
	}
	if ok, _ := s.Verify(ctx, "a@x.com", "222222"); !ok {
		t.Fatal("new code should verify")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(5)
	now := time.Now()
	s.now = func() time.Time { return now }

	_ = s.Save(ctx, "a@x.com", "123456", time.Minute)

	now = now.Add(time.Minute)

	if ok, _ := s.Verify(ctx, "a@x.com", "123456"); ok {
		t.Fatal("expired challenge must not verify")
	}
	if s.Len() != 0 {
		t.Fatalf("expired challenge should be dropped, len=%d", s.Len())
	}
}

func TestMemoryStoreAttemptLimit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)
	_ = s.Save(ctx, "a@x.com", "123456", time.Minute)

	for i := 0; i < 3; i++ {
		if ok, _ := s.Verify(ctx, "a@x.com", "000000"); ok {
			t.Fatal("wrong code verified")
		}
	}

	if ok, _ := s.Verify(ctx, "a@x.com", "123456"); ok {
		t.Fatal("challenge must be destroyed after max failed attempts")
	}
}

func TestMemoryStoreDiscardOnlyMatchingCode(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(5)
	_ = s.Save(ctx, "a@x.com", "222222", time.Minute)

	_ = s.Discard(ctx, "a@x.com", "111111")
	if s.Len() != 1 {
		t.Fatal("discard with a stale code must keep the newer challenge")
	}

	_ = s.Discard(ctx, "a@x.com", "222222")
	if s.Len() != 0 {
		t.Fatal("discard with the live code should remove it")
	}
}

func TestMemoryStoreCleanup(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(5)
	now := time.Now()
	s.now = func() time.Time { return now }

	_ = s.Save(ctx, "short", "111111", time.Second)
	_ = s.Save(ctx, "long", "222222", time.Hour)

	now = now.Add(time.Minute)

	if removed := s.Cleanup(); removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 remaining, got %d", s.Len())
	}
}

func TestMemoryStoreConcurrentVerify(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(5)
	_ = s.Save(ctx, "a@x.com", "123456", time.Minute)

	var wins int64
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.Verify(ctx, "a@x.com", "123456"); ok {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one successful verification, got %d", wins)
	}
}
