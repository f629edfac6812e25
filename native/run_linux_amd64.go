//go:build linux && amd64 && cgo

package native

/*
#cgo CFLAGS: -Wall -D_GNU_SOURCE
#include <setjmp.h>
#include <signal.h>
#include <stdint.h>
#include <string.h>
#include <ucontext.h>

typedef void (*armjit_entry)(void *ctx);

typedef struct {
	int       faulted;
	int       write;
	uintptr_t addr;
} armjit_result;

static struct sigaction armjit_prev_segv;
static struct sigaction armjit_prev_bus;

static __thread int armjit_active;
static __thread sigjmp_buf armjit_env;
static __thread armjit_result *armjit_out;

static void armjit_chain(int sig, siginfo_t *info, void *uctx) {
	struct sigaction *prev = sig == SIGBUS ? &armjit_prev_bus : &armjit_prev_segv;
	if (prev->sa_flags & SA_SIGINFO) {
		prev->sa_sigaction(sig, info, uctx);
		return;
	}
	if (prev->sa_handler == SIG_IGN) {
		return;
	}
	if (prev->sa_handler == SIG_DFL) {
		signal(sig, SIG_DFL);
		raise(sig);
		return;
	}
	prev->sa_handler(sig);
}

static void armjit_handler(int sig, siginfo_t *info, void *uctx) {
	if (!armjit_active) {
		armjit_chain(sig, info, uctx);
		return;
	}
	ucontext_t *uc = (ucontext_t *)uctx;
	armjit_active = 0;
	armjit_out->faulted = 1;
	armjit_out->addr = (uintptr_t)info->si_addr;
	// page fault error code bit 1: write access
	armjit_out->write = (uc->uc_mcontext.gregs[REG_ERR] & 2) != 0;
	siglongjmp(armjit_env, 1);
}

static int armjit_install(void) {
	struct sigaction sa;
	memset(&sa, 0, sizeof(sa));
	sa.sa_sigaction = armjit_handler;
	sa.sa_flags = SA_SIGINFO | SA_ONSTACK | SA_NODEFER;
	sigemptyset(&sa.sa_mask);
	if (sigaction(SIGSEGV, &sa, &armjit_prev_segv) != 0) {
		return -1;
	}
	if (sigaction(SIGBUS, &sa, &armjit_prev_bus) != 0) {
		return -1;
	}
	return 0;
}

static void armjit_run(uintptr_t entry, uintptr_t ctx, armjit_result *out) {
	memset(out, 0, sizeof(*out));
	armjit_out = out;
	if (sigsetjmp(armjit_env, 1) == 0) {
		armjit_active = 1;
		((armjit_entry)entry)((void *)ctx);
	}
	armjit_active = 0;
	armjit_out = 0;
}
*/
import "C"

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/colorfulnotion/armjit/jiterrors"
	"github.com/colorfulnotion/armjit/log"
)

var (
	installOnce sync.Once
	installErr  error
)

func install() error {
	installOnce.Do(func() {
		if C.armjit_install() != 0 {
			installErr = fmt.Errorf("%w: install trap handler", jiterrors.ErrUnsupportedPlatform)
			return
		}
		log.Debug(log.FaultMonitoring, "native trap handler installed")
	})
	return installErr
}

// Supported reports whether translated code can run on this host.
func Supported() bool {
	return true
}

// Run enters translated code at enter with ctx in the first argument
// register and returns when the code returns or faults. The calling
// goroutine stays on its OS thread for the duration.
func Run(enter, ctx uintptr) (Result, error) {
	if err := install(); err != nil {
		return Result{}, err
	}
	var out C.armjit_result
	runtime.LockOSThread()
	C.armjit_run(C.uintptr_t(enter), C.uintptr_t(ctx), &out)
	runtime.UnlockOSThread()
	return Result{
		Faulted: out.faulted != 0,
		Addr:    uintptr(out.addr),
		Write:   out.write != 0,
	}, nil
}
