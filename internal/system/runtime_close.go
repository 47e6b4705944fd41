package system

import "errors"

// Close releases resources held by a Runtime. It is safe on a partially
// booted runtime.
func (rt *Runtime) Close() error {
	if rt == nil {
		return nil
	}

	var errs []error

	if rt.Watcher != nil {
		rt.Watcher.Stop()
		rt.Watcher = nil
	}

	if rt.Audit != nil {
		if err := rt.Audit.Close(); err != nil {
			errs = append(errs, err)
		}
		rt.Audit = nil
	}

	if err := rt.Index.Close(); err != nil {
		errs = append(errs, err)
	}
	rt.Index = nil

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Close releases the index store.
func (ir *IndexRuntime) Close() error {
	if ir == nil || ir.Store == nil {
		return nil
	}
	err := ir.Store.Close()
	ir.Store = nil
	return err
}
