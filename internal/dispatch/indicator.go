package dispatch

import "sync"

// Indicator is a progress surface shown while a request is outstanding.
type Indicator interface {
	Show(message string)
	Dismiss()
}

// onceIndicator guarantees a single Dismiss per call.
type onceIndicator struct {
	ind  Indicator
	once sync.Once
}

func showIndicator(ind Indicator, message string) *onceIndicator {
	if ind == nil {
		return nil
	}
	ind.Show(message)
	return &onceIndicator{ind: ind}
}

func (o *onceIndicator) dismiss() {
	if o == nil {
		return
	}
	o.once.Do(o.ind.Dismiss)
}
