package tracing_test

import (
	"bytes"
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/pkg/tracing"
)

func TestInit(t *testing.T) {
	Convey("Given tracing is disabled", t, func() {
		shutdown, err := tracing.Init(false)
		So(err, ShouldBeNil)
		So(shutdown(context.Background()), ShouldBeNil)
	})

	Convey("Given tracing is enabled with a buffer", t, func() {
		var buf bytes.Buffer
		shutdown, err := tracing.Init(true, tracing.WithWriter(&buf), tracing.WithSyncExport(), tracing.WithServiceName("test"))
		So(err, ShouldBeNil)
		defer otel.SetTracerProvider(noop.NewTracerProvider())

		_, span := tracing.Tracer("tracing_test").Start(context.Background(), "unit")
		span.End()
		So(shutdown(context.Background()), ShouldBeNil)

		So(buf.String(), ShouldContainSubstring, `"Name":"unit"`)
		So(buf.String(), ShouldContainSubstring, "test")
	})
}
