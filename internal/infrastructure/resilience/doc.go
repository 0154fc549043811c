/*
Package resilience provides a consecutive-failure circuit breaker.

The WebDriver client puts one in front of session commands so that a driver
which has gone away fails the remaining commands of a run immediately
instead of each waiting out its own timeout.

	breaker := resilience.New("driver", resilience.Settings{
		Threshold: 3,
		Cooldown:  2 * time.Second,
	})
	err := breaker.Call(ctx, func(ctx context.Context) error {
		return send(ctx)
	})

States:

	Closed --[Threshold failures]-> Open --[Cooldown]-> Half-Open --[trial ok]-> Closed
	                                  ^                     |
	                                  +----[trial failed]---+
*/
package resilience
