package s3blob

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/opine-markets/opined/internal/domain"
)

type captureWriter struct {
	path        string
	contentType string
	data        []byte
	puts        int
}

func (w *captureWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	w.puts++
	w.path = path
	w.contentType = contentType
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(data); err != nil {
		return err
	}
	w.data = buf.Bytes()
	return nil
}

type stubOrderStore struct {
	orders []domain.Order
	err    error
}

func (s *stubOrderStore) ListBefore(_ context.Context, _ time.Time) ([]domain.Order, error) {
	return s.orders, s.err
}

type stubAuditStore struct {
	entries []domain.AuditEntry
	logged  []string
}

func (s *stubAuditStore) ListBefore(_ context.Context, _ time.Time) ([]domain.AuditEntry, error) {
	return s.entries, nil
}

func (s *stubAuditStore) Log(_ context.Context, event string, _ map[string]any) error {
	s.logged = append(s.logged, event)
	return nil
}

func TestArchiveOrders(t *testing.T) {
	writer := &captureWriter{}
	orders := &stubOrderStore{orders: []domain.Order{
		{ID: "o1", MarketID: "m1", User: "alice", Side: domain.OrderSideBuy, Status: domain.OrderStatusExecuted},
		{ID: "o2", MarketID: "m1", User: "bob", Side: domain.OrderSideSell, Status: domain.OrderStatusFailed},
	}}
	audit := &stubAuditStore{}
	a := NewArchiver(writer, orders, audit, audit)

	before := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	count, err := a.ArchiveOrders(context.Background(), before)
	if err != nil {
		t.Fatalf("ArchiveOrders() error: %v", err)
	}
	if count != 2 {
		t.Errorf("ArchiveOrders() count = %d, want 2", count)
	}

	if writer.path != "archive/orders/2025-03.jsonl" {
		t.Errorf("archive path = %q, want archive/orders/2025-03.jsonl", writer.path)
	}
	if writer.contentType != "application/x-ndjson" {
		t.Errorf("content type = %q, want application/x-ndjson", writer.contentType)
	}

	lines := strings.Split(strings.TrimRight(string(writer.data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("archive holds %d lines, want 2:\n%s", len(lines), writer.data)
	}
	if !strings.Contains(lines[0], `"o1"`) || !strings.Contains(lines[1], `"o2"`) {
		t.Errorf("archive lines missing order IDs:\n%s", writer.data)
	}

	if len(audit.logged) != 1 || audit.logged[0] != "archive.orders" {
		t.Errorf("audit events = %v, want [archive.orders]", audit.logged)
	}
}

func TestArchiveOrdersEmptySkipsUpload(t *testing.T) {
	writer := &captureWriter{}
	audit := &stubAuditStore{}
	a := NewArchiver(writer, &stubOrderStore{}, audit, audit)

	count, err := a.ArchiveOrders(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ArchiveOrders() error: %v", err)
	}
	if count != 0 {
		t.Errorf("ArchiveOrders() count = %d, want 0", count)
	}
	if writer.puts != 0 {
		t.Errorf("Put called %d times for empty archive, want 0", writer.puts)
	}
	if len(audit.logged) != 0 {
		t.Errorf("audit events = %v, want none for empty archive", audit.logged)
	}
}

func TestArchiveAudit(t *testing.T) {
	writer := &captureWriter{}
	audit := &stubAuditStore{entries: []domain.AuditEntry{
		{ID: 1, Event: "market.create", CreatedAt: time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC)},
	}}
	a := NewArchiver(writer, &stubOrderStore{}, audit, audit)

	before := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	count, err := a.ArchiveAudit(context.Background(), before)
	if err != nil {
		t.Fatalf("ArchiveAudit() error: %v", err)
	}
	if count != 1 {
		t.Errorf("ArchiveAudit() count = %d, want 1", count)
	}
	if writer.path != "archive/audit/2025-01.jsonl" {
		t.Errorf("archive path = %q, want archive/audit/2025-01.jsonl", writer.path)
	}
	if !strings.Contains(string(writer.data), `"market.create"`) {
		t.Errorf("archive missing audit event name:\n%s", writer.data)
	}
	if len(audit.logged) != 1 || audit.logged[0] != "archive.audit" {
		t.Errorf("audit events = %v, want [archive.audit]", audit.logged)
	}
}
