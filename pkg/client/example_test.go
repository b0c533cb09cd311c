package client_test

import (
	"context"
	"fmt"

	"github.com/daniacca/geosim/pkg/client"
)

func ExampleRunBuilder() {
	run := client.NewRun("pliocene").
		Step(0.5).
		Duration(5).
		CheckpointEvery(4).
		Climate(0, 15, 1.0, 0.5).
		Climate(5, 18, 1.2, 0.6).
		Notifiers("ws")

	req := run.Build()
	fmt.Printf("Run: %s\n", req.ID)
	fmt.Printf("Step: %v My\n", req.TimeStepMy)
	fmt.Printf("Keyframes: %d\n", len(req.Climate))
	// Output:
	// Run: pliocene
	// Step: 0.5 My
	// Keyframes: 2
}

func ExampleClient_Rewind() {
	ctx := context.Background()
	c := client.New("http://localhost:8080")

	// Uncomment against a running server:
	// if _, err := c.CreateRun(ctx, client.NewRun("demo")); err != nil {
	// 	log.Fatal(err)
	// }
	// for range 20 {
	// 	c.Tick(ctx, "demo", 0)
	// }
	// exact := true
	// snap, err := c.Rewind(ctx, "demo", 7.5, &exact)

	_ = ctx
	_ = c
}
