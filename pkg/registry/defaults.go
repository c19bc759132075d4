package registry

import (
	"fmt"
	"log/slog"

	"github.com/weftworks/weft/pkg/nodes/httprequest"
	"github.com/weftworks/weft/pkg/nodes/human"
	lognode "github.com/weftworks/weft/pkg/nodes/log"
	"github.com/weftworks/weft/pkg/nodes/switchnode"
	transformnode "github.com/weftworks/weft/pkg/nodes/transform"
	"github.com/weftworks/weft/pkg/nodes/trigger"
	"github.com/weftworks/weft/pkg/protocol"
	"github.com/weftworks/weft/pkg/transform"
)

// RegisterDefaults registers the built-in node kinds. The expression
// converter is shared so switch and transform nodes reuse one program cache.
func RegisterDefaults(registry *Registry, logger *slog.Logger, converter *transform.Converter) error {
	factories := []protocol.RunnerFactory{
		trigger.NewWebhookFactory(logger),
		trigger.NewSchedulerFactory(logger),
		trigger.NewKafkaFactory(logger),
		httprequest.NewFactory(logger),
		transformnode.NewFactory(logger, converter),
		switchnode.NewFactory(logger, converter),
		lognode.NewFactory(logger),
		human.NewFactory(logger),
	}

	for _, factory := range factories {
		if err := registry.Register(factory); err != nil {
			return fmt.Errorf("failed to register %q: %w", factory.Kind(), err)
		}
	}

	return nil
}
