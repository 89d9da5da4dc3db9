package launch

import (
	"fmt"
	"strconv"

	"github.com/minimario/symlaunch/pkg/models"
)

// logNamePrefix identifies the model family in derived run names
const logNamePrefix = "sym-nco-am"

// BuildArgs generates the ordered command-line tokens for one training run.
// Flag order is stable: required parameters first, supervision flags only
// when the run is supervised, log_name always last. Every value flag is
// followed by exactly one value token.
func BuildArgs(spec models.TrainSpec) []string {
	args := []string{
		"--problem", spec.Problem,
		"--N_aug", strconv.Itoa(spec.NAug),
		"--graph_size", strconv.Itoa(spec.GraphSize),
	}

	if spec.Supervised() {
		args = append(args,
			"--supervise_lambda", formatFloat(spec.SuperviseLambda),
			"--num_equivariant_samples", strconv.Itoa(spec.EquivariantSamples),
		)
	}

	if spec.Epochs > 0 {
		args = append(args, "--n_epochs", strconv.Itoa(spec.Epochs))
	}
	if spec.BatchSize > 0 {
		args = append(args, "--batch_size", strconv.Itoa(spec.BatchSize))
	}
	if spec.Seed > 0 {
		args = append(args, "--seed", strconv.Itoa(spec.Seed))
	}

	args = append(args, "--log_name", LogName(spec))
	return args
}

// LogName derives the run log name. An explicit LogName on the spec wins;
// otherwise the name encodes the supervision flags and the problem so that
// two runs differing only in supervision never collide:
//
//	cvrp, size 20                    -> sym-nco-am-cvrp20
//	cvrp, size 20, eq=5, lambda=0.1  -> sym-nco-am-eq5-lambda0.1-cvrp20
func LogName(spec models.TrainSpec) string {
	if spec.LogName != "" {
		return spec.LogName
	}

	name := logNamePrefix
	if spec.Supervised() {
		name += fmt.Sprintf("-eq%d-lambda%s", spec.EquivariantSamples, formatFloat(spec.SuperviseLambda))
	}
	return fmt.Sprintf("%s-%s%d", name, spec.Problem, spec.GraphSize)
}

// formatFloat renders a float without trailing zeros (0.10 -> "0.1")
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
