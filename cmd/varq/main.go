// Package main provides the varq CLI.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/varq-ml/varq/autodiff"
	"github.com/varq-ml/varq/backend/sim"
	"github.com/varq-ml/varq/circuit"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Printf("varq %s\n", version)
			return
		case "demo":
			if err := demo(); err != nil {
				log.Fatal(err)
			}
			return
		}
	}

	fmt.Println("varq - Hybrid Classical/Quantum Differentiable Programming for Go")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version    Show version")
	fmt.Println("  demo       Differentiate a one-qubit circuit")
}

// demo differentiates <Z> of an RX rotation and prints the exact match
// against -sin(theta).
func demo() error {
	theta := autodiff.ParameterScalar(0.7)
	c := circuit.New().Append(circuit.RX(0, theta))
	obs := circuit.NewObservable().Term(1, circuit.FactorZ(0))

	m, err := sim.New(1, sim.DefaultConfig())
	if err != nil {
		return err
	}
	e, err := autodiff.Expectation(c, obs, m)
	if err != nil {
		return err
	}

	ev := autodiff.NewEvaluator(autodiff.DefaultConfig())
	out, err := ev.Eval(e)
	if err != nil {
		return err
	}
	grads := autodiff.NewGradients()
	if err := ev.Backward(e, grads); err != nil {
		return err
	}

	fmt.Printf("theta      = %.4f\n", 0.7)
	fmt.Printf("<Z>        = %.6f (cos theta)\n", out.At(0, 0))
	fmt.Printf("d<Z>/dtheta = %.6f (-sin theta)\n", grads.Of(theta).At(0, 0))
	return nil
}
