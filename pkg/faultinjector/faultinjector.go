// Package faultinjector implements the named-probe-point failure injector
// used to test recovery: a process-wide registry, configured from a single
// option string, that the recovery state machines call into at named
// sites to induce a failure on a chosen iteration.
package faultinjector

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"

	shellquote "github.com/kballard/go-shellquote"
)

type failureType int

const (
	failureExit failureType = iota
	failureThrow
)

// ErrInduced is returned by MaybeFail (wrapped with the label and iteration)
// when a probe point fires its "throw" action.
var ErrInduced = fmt.Errorf("faultinjector: induced failure")

type state struct {
	failureType      failureType
	errorCode        int
	iteration        uint32
	triggerIteration uint32
}

// Injector is a process-wide registry of named probe points. The zero value
// is ready to use; Global is the shared instance production code installs
// probes against.
type Injector struct {
	mu    sync.Mutex
	state map[string]*state
}

// Global is the injector every recovery component consults by default. A
// test harness configures it via ParseOptions before exercising a scenario.
var Global = &Injector{}

// ParseOptions splits opts (a single space-separated option string, quoting
// handled the way a shell would) into individual probe specs and installs
// each one. Each spec has the shape "label:action:trigger_iteration", where
// action is "exit" or "throw" or "throw(0xCODE)".
func (inj *Injector) ParseOptions(opts string) error {
	fields, err := shellquote.Split(opts)
	if err != nil {
		return fmt.Errorf("faultinjector: parse options %q: %w", opts, err)
	}
	for _, f := range fields {
		if err := inj.parseSpec(f); err != nil {
			return err
		}
	}
	return nil
}

func (inj *Injector) parseSpec(spec string) error {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) != 3 {
		return fmt.Errorf("faultinjector: malformed spec %q, want label:action:iteration", spec)
	}
	label, action, iterStr := parts[0], parts[1], parts[2]

	st := &state{}
	switch {
	case action == "exit":
		st.failureType = failureExit
	case strings.HasPrefix(action, "throw"):
		st.failureType = failureThrow
		st.errorCode = 1
		if strings.HasPrefix(action, "throw(") && strings.HasSuffix(action, ")") {
			codeStr := action[len("throw(") : len(action)-1]
			base := 10
			if strings.HasPrefix(strings.ToLower(codeStr), "0x") {
				base = 16
				codeStr = codeStr[2:]
			}
			code, err := strconv.ParseInt(codeStr, base, 32)
			if err != nil {
				return fmt.Errorf("faultinjector: bad error code in spec %q: %w", spec, err)
			}
			st.errorCode = int(code)
		}
	default:
		return fmt.Errorf("faultinjector: unknown action %q in spec %q", action, spec)
	}

	trigger, err := strconv.ParseUint(iterStr, 10, 32)
	if err != nil {
		return fmt.Errorf("faultinjector: bad trigger iteration in spec %q: %w", spec, err)
	}
	st.triggerIteration = uint32(trigger)

	inj.mu.Lock()
	defer inj.mu.Unlock()
	if inj.state == nil {
		inj.state = map[string]*state{}
	}
	inj.state[label] = st
	return nil
}

// MaybeFail consults the probe point named label. If it isn't installed,
// this is a no-op. If it's installed but hasn't reached its trigger
// iteration yet, the iteration counter advances. On the trigger iteration,
// it either calls os.Exit(1) or returns ErrInduced, and removes the probe
// so it only fires once.
func (inj *Injector) MaybeFail(label string) error {
	inj.mu.Lock()
	defer inj.mu.Unlock()

	st, ok := inj.state[label]
	if !ok {
		return nil
	}

	if st.iteration != st.triggerIteration {
		st.iteration++
		return nil
	}

	delete(inj.state, label)

	if st.failureType == failureExit {
		log.Printf("faultinjector: induced exit at %q iteration=%d", label, st.iteration)
		os.Exit(1)
		return nil // unreachable
	}

	log.Printf("faultinjector: induced failure code %d at %q iteration=%d", st.errorCode, label, st.iteration)
	return fmt.Errorf("%w: code %d at %q iteration=%d", ErrInduced, st.errorCode, label, st.iteration)
}

// Clear removes every installed probe point.
func (inj *Injector) Clear() {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	inj.state = map[string]*state{}
}
