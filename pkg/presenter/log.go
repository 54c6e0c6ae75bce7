package presenter

import (
	"context"
	"reflect"

	"github.com/mpapenbr/openf1-insights/log"
	"github.com/mpapenbr/openf1-insights/pkg/insights"
)

// LogPresenter writes a summary of each view to the log
type LogPresenter struct {
	l *log.Logger
}

func NewLogPresenter(l *log.Logger) *LogPresenter {
	if l == nil {
		l = log.Default().Named("presenter.log")
	}
	return &LogPresenter{l: l}
}

//nolint:whitespace // editor/linter issue
func (p *LogPresenter) Present(
	ctx context.Context, sessionKey int, ins *insights.Insights,
) error {
	views := ins.Views()
	fields := []log.Field{
		log.Int("sessionKey", sessionKey),
		log.String("mode", ins.Mode.String()),
		log.Strings("views", ins.Names()),
	}
	for _, name := range ins.Names() {
		fields = append(fields, log.Int(name, size(views[name])))
	}
	if fl, ok := ins.FastestLap.Get(); ok {
		fields = append(fields,
			log.Int("fastestDriver", fl.DriverNumber),
			log.String("fastestTime", fl.Duration.String()))
	}
	p.l.Info("insights", fields...)
	return nil
}

// size returns the number of entries of a view, 1 for single values and 0 for nil
func size(v any) int {
	if v == nil {
		return 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len()
	default:
		return 1
	}
}
