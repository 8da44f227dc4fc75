package workitem_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/vasont/Foundatio/lock"
	"github.com/vasont/Foundatio/lock/memory"
	"github.com/vasont/Foundatio/serializer"
	"github.com/vasont/Foundatio/workitem"
)

type emailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := workitem.NewRegistry()

	var got emailPayload
	def := workitem.NewDefinition("send-email", func(_ context.Context, _ *workitem.Context, p emailPayload) error {
		got = p
		return nil
	})
	workitem.Register(r, def)

	pt, ok := r.ResolveType("send-email")
	if !ok {
		t.Fatal("expected type to be registered")
	}
	h, ok := r.GetHandler(pt)
	if !ok {
		t.Fatal("expected handler to be registered")
	}

	data, _ := serializer.JSON{}.Marshal(emailPayload{To: "alice@example.com", Subject: "Hello"})
	payload, err := pt.Decode(serializer.JSON{}, data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	wc := workitem.NewContext(payload, workitem.Data{WorkItemID: "wi_1"}, workitem.Delivery{EntryID: "qe_1", Attempts: 1})
	if err := h.HandleItem(context.Background(), wc); err != nil {
		t.Fatalf("HandleItem: %v", err)
	}
	if got.To != "alice@example.com" || got.Subject != "Hello" {
		t.Errorf("got %+v", got)
	}
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	r := workitem.NewRegistry()
	if _, ok := r.ResolveType("nonexistent"); ok {
		t.Fatal("expected unknown type")
	}
	if _, ok := r.GetHandler(nil); ok {
		t.Fatal("expected no handler for nil type")
	}
}

func TestRegistry_TypeWithoutHandler(t *testing.T) {
	r := workitem.NewRegistry()
	pt := workitem.RegisterType[emailPayload](r, "orphan")
	if _, ok := r.GetHandler(pt); ok {
		t.Fatal("expected no handler for a bare type")
	}
}

func TestRegistry_DecodeErrorsAndEmpty(t *testing.T) {
	r := workitem.NewRegistry()
	pt := workitem.RegisterType[emailPayload](r, "email")

	if _, err := pt.Decode(serializer.JSON{}, []byte("{broken")); err == nil {
		t.Fatal("expected decode error")
	}
	v, err := pt.Decode(serializer.JSON{}, nil)
	if err != nil {
		t.Fatalf("Decode(nil): %v", err)
	}
	if v.(emailPayload) != (emailPayload{}) {
		t.Errorf("Decode(nil) = %+v, want zero", v)
	}
}

func TestRegistry_Names(t *testing.T) {
	r := workitem.NewRegistry()
	noop := func(context.Context, *workitem.Context, struct{}) error { return nil }
	workitem.Register(r, workitem.NewDefinition("job-c", noop))
	workitem.Register(r, workitem.NewDefinition("job-a", noop))
	workitem.Register(r, workitem.NewDefinition("job-b", noop))

	if got := r.Names(); !slices.Equal(got, []string{"job-a", "job-b", "job-c"}) {
		t.Fatalf("Names() = %v", got)
	}
}

func TestDefinition_Options(t *testing.T) {
	def := workitem.NewDefinition("x",
		func(context.Context, *workitem.Context, struct{}) error { return nil },
		workitem.WithAutoRenewLock(), workitem.WithLogging())
	o := def.Options()
	if !o.AutoRenewLockOnProgress || !o.EnableLogging {
		t.Fatalf("Options() = %+v", o)
	}
	if def.Name() != "x" {
		t.Errorf("Name() = %q", def.Name())
	}
}

func TestDefinition_DefaultLockIsEmpty(t *testing.T) {
	def := workitem.NewDefinition("x", func(context.Context, *workitem.Context, struct{}) error { return nil })
	h, err := def.GetWorkItemLock(context.Background(), struct{}{})
	if err != nil || h == nil {
		t.Fatalf("GetWorkItemLock = %v, %v", h, err)
	}
	if err := h.Release(context.Background()); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestDefinition_WithLock(t *testing.T) {
	b := memory.New()
	defer b.Close()
	locker := lock.NewLocker(b)
	ctx := context.Background()

	def := workitem.NewDefinition("email",
		func(context.Context, *workitem.Context, emailPayload) error { return nil },
	).WithLock(locker, func(p emailPayload) string { return "email:" + p.To }, lock.WithAcquireTimeout(0))

	h1, err := def.GetWorkItemLock(ctx, emailPayload{To: "a"})
	if err != nil || h1 == nil {
		t.Fatalf("first lock = %v, %v", h1, err)
	}
	if h1.Name() != "email:a" {
		t.Errorf("Name() = %q", h1.Name())
	}
	h2, err := def.GetWorkItemLock(ctx, emailPayload{To: "a"})
	if err != nil || h2 != nil {
		t.Fatalf("busy lock = %v, %v; want nil, nil", h2, err)
	}
	_ = h1.Release(ctx)
}

func TestDefinition_WrongPayloadType(t *testing.T) {
	def := workitem.NewDefinition("email", func(context.Context, *workitem.Context, emailPayload) error { return nil })
	wc := workitem.NewContext("not an email", workitem.Data{}, workitem.Delivery{Attempts: 1})
	if err := def.HandleItem(context.Background(), wc); err == nil {
		t.Fatal("expected type mismatch error")
	}
}

func TestContext_ReportProgressClamps(t *testing.T) {
	var got []int
	wc := workitem.NewContext(nil, workitem.Data{}, workitem.Delivery{
		OnProgress: func(_ context.Context, p int, _ string) error {
			got = append(got, p)
			return nil
		},
	})
	ctx := context.Background()
	_ = wc.ReportProgress(ctx, -5, "")
	_ = wc.ReportProgress(ctx, 50, "")
	_ = wc.ReportProgress(ctx, 150, "")
	if !slices.Equal(got, []int{0, 50, 100}) {
		t.Fatalf("progress = %v", got)
	}
}

func TestContext_ReportProgressError(t *testing.T) {
	boom := errors.New("renew failed")
	wc := workitem.NewContext(nil, workitem.Data{}, workitem.Delivery{
		OnProgress: func(context.Context, int, string) error { return boom },
	})
	if err := wc.ReportProgress(context.Background(), 10, ""); !errors.Is(err, boom) {
		t.Fatalf("ReportProgress = %v", err)
	}
}
