package system

import (
	"math"
	"time"

	"github.com/ticworld/kernel/internal/component"
	"github.com/ticworld/kernel/internal/core/ecs"
	"github.com/ticworld/kernel/internal/core/event"
	coresys "github.com/ticworld/kernel/internal/core/system"
	"github.com/ticworld/kernel/internal/physics"
	"go.uber.org/zap"
)

// ConsumptionSystem lets eaters pick up food they touched during the
// physics step. Each food item is consumed at most once; it is destroyed
// at tic end.
type ConsumptionSystem struct {
	world   *ecs.World
	comps   *component.Set
	physics *physics.State
	emit    func(event.Event)
	tic     func() uint64
	log     *zap.Logger
}

func NewConsumptionSystem(world *ecs.World, comps *component.Set, ps *physics.State, emit func(event.Event), tic func() uint64, log *zap.Logger) *ConsumptionSystem {
	return &ConsumptionSystem{world: world, comps: comps, physics: ps, emit: emit, tic: tic, log: log}
}

func (s *ConsumptionSystem) Phase() coresys.Phase { return coresys.PhaseConsumption }

func (s *ConsumptionSystem) Update(_ time.Duration) error {
	c := s.comps
	for _, pair := range s.physics.SensorContacts() {
		food, eater := pair[0], pair[1]
		if !c.Food.Has(food) || !c.Eater.Has(eater) || s.world.PendingDestruction(food) {
			continue
		}
		nutrition := c.Food.F(food, component.FoodNutrition)
		hunger := math.Max(0, c.Eater.F(eater, component.EaterHunger)-nutrition)
		c.Eater.SetFloat(eater, component.EaterHunger, hunger)
		c.Eater.SetFloat(eater, component.EaterEaten, c.Eater.F(eater, component.EaterEaten)+1)
		s.world.MarkForDestruction(food)
		s.emit(event.Consumed{Tic: s.tic(), Eater: eater, Item: food, Nutrition: nutrition})
		s.log.Debug("food consumed",
			zap.Uint64("eater", uint64(eater)),
			zap.Uint64("item", uint64(food)),
			zap.Float64("nutrition", nutrition),
		)
	}
	return nil
}
