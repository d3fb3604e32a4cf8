// SPDX-License-Identifier: Apache-2.0

package pgconn

import (
	"os"
	"sync"
)

// envScope serializes process-wide environment mutation so that two
// concurrent child-process invocations requiring different credentials
// never race on the same process environment (§5: "implementations
// should serialize CLI invocations or use per-call environment passing").
var envScope sync.Mutex

// WithEnv overlays d's PG* variables onto the process environment for
// the duration of fn, restoring the previous values (or clearing the
// keys that were previously unset) on every exit path, including a
// panic in fn.
func (d *ConnectionDescriptor) WithEnv(fn func() error) error {
	envScope.Lock()
	defer envScope.Unlock()

	overlay := d.Env()
	prior := make(map[string]*string, len(overlay))
	for k := range overlay {
		if v, ok := os.LookupEnv(k); ok {
			vv := v
			prior[k] = &vv
		} else {
			prior[k] = nil
		}
	}

	defer func() {
		for k, v := range prior {
			if v == nil {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, *v)
			}
		}
	}()

	for k, v := range overlay {
		if err := os.Setenv(k, v); err != nil {
			return err
		}
	}

	return fn()
}
