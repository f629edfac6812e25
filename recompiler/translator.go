package recompiler

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/colorfulnotion/armjit/common"
	"github.com/colorfulnotion/armjit/log"
	"github.com/colorfulnotion/armjit/memory"
	"github.com/colorfulnotion/armjit/types"
)

const tracerName = "github.com/colorfulnotion/armjit/recompiler"

// Stats counts translator activity.
type Stats struct {
	Lookups       uint64
	Hits          uint64
	Compiles      uint64
	LostRaces     uint64
	Invalidations uint64
	GuestInsts    uint64
	HostBytes     uint64
	CompileTime   time.Duration
}

// ProfileEntry records how often a key was translated.
type ProfileEntry struct {
	Key          types.GuestAddress `json:"key"`
	Compiles     uint32             `json:"compiles"`
	Instructions uint32             `json:"instructions"`
	HostBytes    uint32             `json:"host_bytes"`
	GuestHash    common.Hash        `json:"guest_hash"`
}

// Translator is the runtime side of translation: it resolves dispatch misses
// by compiling guest code from a memory manager and drops units whose guest
// bytes go away or change.
type Translator struct {
	mm     *memory.Manager
	table  *AddressTable
	tracer trace.Tracer
	smc    bool

	lookups, hits, compiles, lost, invalidations atomic.Uint64
	guestInsts, hostBytes                         atomic.Uint64
	compileNanos                                  atomic.Int64

	profileMu sync.Mutex
	profile   map[types.GuestAddress]*ProfileEntry

	unsubscribe func()
}

// NewTranslator ties table to the guest memory of mm. With detectSMC set,
// pages holding translated code are observed and a write to one of them
// invalidates the units built from it.
func NewTranslator(mm *memory.Manager, table *AddressTable, detectSMC bool) *Translator {
	t := &Translator{
		mm:      mm,
		table:   table,
		tracer:  otel.Tracer(tracerName),
		smc:     detectSMC,
		profile: make(map[types.GuestAddress]*ProfileEntry),
	}
	t.unsubscribe = mm.SubscribeUnmap(t.onUnmap)
	if detectSMC {
		mm.Tracking().SubscribeWrite(t.onCodeWrite)
	}
	return t
}

func (t *Translator) Table() *AddressTable {
	return t.table
}

func (t *Translator) guestRange(va, size uint64) (uint64, uint64) {
	start := va - t.mm.ReservedSize()
	return start, start + size
}

func (t *Translator) onUnmap(va, size uint64) {
	start, end := t.guestRange(va, size)
	if n := t.table.InvalidateRange(start, end); n > 0 {
		t.invalidations.Add(uint64(n))
	}
}

func (t *Translator) onCodeWrite(va, size uint64) {
	start, end := t.guestRange(va, size)
	if n := t.table.InvalidateRange(start, end); n > 0 {
		t.invalidations.Add(uint64(n))
		log.Debug(log.JitMonitoring, "code page written", "page", fmt.Sprintf("%#x", start), "units", n)
	}
}

// Translate returns the unit for key, compiling it on a miss.
func (t *Translator) Translate(ctx context.Context, key types.GuestAddress) (*TranslatedUnit, error) {
	t.lookups.Add(1)
	if u := t.table.Lookup(key); u != nil {
		t.hits.Add(1)
		return u, nil
	}
	_, span := t.tracer.Start(ctx, "compile", trace.WithAttributes(
		attribute.String("key", key.String()),
		attribute.Bool("thumb", key.IsThumb()),
	))
	defer span.End()

	start := time.Now()
	u, err := Compile(t.table.arch, t.mm, key, t.table, t.table.DispatchAddress(), key.IsThumb())
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("guest.instructions", len(u.Instructions)),
		attribute.Int("host.bytes", len(u.Code)),
	)
	t.compiles.Add(1)
	t.compileNanos.Add(int64(elapsed))
	t.guestInsts.Add(uint64(len(u.Instructions)))
	t.hostBytes.Add(uint64(len(u.Code)))

	winner := t.table.Lookup(key)
	if winner != nil && winner != u {
		t.lost.Add(1)
	}
	t.record(u)
	if winner == u && t.smc {
		t.observe(u)
	}
	if winner != nil {
		return winner, nil
	}
	return u, nil
}

func (t *Translator) record(u *TranslatedUnit) {
	t.profileMu.Lock()
	defer t.profileMu.Unlock()
	e := t.profile[u.Key]
	if e == nil {
		e = &ProfileEntry{Key: u.Key}
		t.profile[u.Key] = e
	}
	e.Compiles++
	e.Instructions = uint32(len(u.Instructions))
	e.HostBytes = uint32(len(u.Code))
	e.GuestHash = u.GuestHash
}

// observe write-protects the code pages of u.
func (t *Translator) observe(u *TranslatedUnit) {
	tr := t.mm.Tracking()
	first := uint64(u.Start) &^ (memory.PageSize - 1)
	for page := first; page < uint64(u.End); page += memory.PageSize {
		va := t.mm.ReservedSize() + page
		if tr.IsObserved(va) {
			continue
		}
		if err := tr.Observe(va, memory.PageSize); err != nil {
			log.Trace(log.JitMonitoring, "observe code page", "page", fmt.Sprintf("%#x", page), "err", err)
		}
	}
}

// Warm translates keys in parallel, for example from a saved profile. Keys
// that fail to compile are logged and skipped; only cancellation is an
// error.
func (t *Translator) Warm(ctx context.Context, keys []types.GuestAddress) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, key := range keys {
		key := key
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if _, err := t.Translate(gctx, key); err != nil {
				log.Debug(log.JitMonitoring, "warm skipped", "key", key, "err", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (t *Translator) Stats() Stats {
	return Stats{
		Lookups:       t.lookups.Load(),
		Hits:          t.hits.Load(),
		Compiles:      t.compiles.Load(),
		LostRaces:     t.lost.Load(),
		Invalidations: t.invalidations.Load(),
		GuestInsts:    t.guestInsts.Load(),
		HostBytes:     t.hostBytes.Load(),
		CompileTime:   time.Duration(t.compileNanos.Load()),
	}
}

// Profile returns the translation profile ordered by key.
func (t *Translator) Profile() []ProfileEntry {
	t.profileMu.Lock()
	out := make([]ProfileEntry, 0, len(t.profile))
	for _, e := range t.profile {
		out = append(out, *e)
	}
	t.profileMu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Close stops listening to the memory manager. The table is left to its
// owner.
func (t *Translator) Close() {
	if t.unsubscribe != nil {
		t.unsubscribe()
		t.unsubscribe = nil
	}
}
