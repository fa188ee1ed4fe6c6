package slurm

import (
	"fmt"
	"strings"

	"github.com/gourd-go/gourd/pkg/model"
)

// BatchScript renders the array batch script for a chunk of n runs,
// following the exact §4.7 directive order: job-name, array, ntasks,
// partition, time, cpus-per-task, mem-per-cpu, account, then the optional
// directives, then the wrapper invocation line.
func BatchScript(experimentName, wrapperBin, experimentPath string, chunkID, n int, limits model.ResourceLimits, cfg model.SlurmConfig) string {
	var b strings.Builder

	fmt.Fprintf(&b, "#!/bin/bash\n")
	fmt.Fprintf(&b, "#SBATCH --job-name=%s\n", experimentName)
	fmt.Fprintf(&b, "#SBATCH --array=0-%d\n", n-1)
	fmt.Fprintf(&b, "#SBATCH --ntasks=1\n")
	fmt.Fprintf(&b, "#SBATCH --partition=%s\n", limits.Partition)
	fmt.Fprintf(&b, "#SBATCH --time=%s\n", FormatDuration(limits.Time))
	fmt.Fprintf(&b, "#SBATCH --cpus-per-task=%d\n", limits.CPUs)
	fmt.Fprintf(&b, "#SBATCH --mem-per-cpu=%d\n", limits.MemPerCPU)
	fmt.Fprintf(&b, "#SBATCH --account=%s\n", limits.Account)

	if cfg.Begin != "" {
		fmt.Fprintf(&b, "#SBATCH --begin=%s\n", cfg.Begin)
	}

	if cfg.MailType != "" {
		fmt.Fprintf(&b, "#SBATCH --mail-type=%s\n", cfg.MailType)
	}

	if cfg.MailUser != "" {
		fmt.Fprintf(&b, "#SBATCH --mail-user=%s\n", cfg.MailUser)
	}

	fmt.Fprintf(&b, "\n%s %s %d $SLURM_ARRAY_TASK_ID\n", wrapperBin, experimentPath, chunkID)

	return b.String()
}
