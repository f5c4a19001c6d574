package page

import "time"

// Clock supplies wall time and deferred callbacks. Callbacks scheduled
// with AfterFunc cannot be cancelled.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func())
}

type systemClock struct{}

// SystemClock is the real clock.
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

// Navigator is the navigation sink. NavigateTo is fire-and-forget.
type Navigator interface {
	NavigateTo(url string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(url string)

func (f NavigatorFunc) NavigateTo(url string) {
	f(url)
}
