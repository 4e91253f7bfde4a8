package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// cancelGracePeriod is how long a cancelled step may keep running
// after SIGINT before it is killed.
const cancelGracePeriod = 10 * time.Second

// runStep executes one generator as a local process in dir. The
// generator contract is "reads its own implicit inputs, writes its
// designated output file, exits zero on success"; stdout/stderr are
// treated as opaque logs and streamed to outputCh line by line.
func runStep(
	ctx context.Context,
	dir string,
	step Step,
	outputCh chan<- string,
) error {
	fields := strings.Fields(step.Command)
	if len(fields) == 0 {
		return GeneratorError{Step: step.Step, Err: errors.New("empty command")}
	}

	timeout := time.Duration(step.TimeoutSeconds) * time.Second
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.Command(fields[0], fields[1:]...)
	cmd.Dir = dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return GeneratorError{Step: step.Step, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return GeneratorError{Step: step.Step, Err: err}
	}

	doneCh := make(chan error, 1)
	go func() {
		if err := cmd.Start(); err != nil {
			doneCh <- errors.Join(fmt.Errorf("err starting command %s", step.Command), err)
			return
		}

		// scan output produced by the command and pass it to the output channel
		var wg sync.WaitGroup
		wg.Go(func() {
			scanner := bufio.NewScanner(stdout)
			for scanner.Scan() {
				outputCh <- scanner.Text() + "\n"
			}
		})
		wg.Go(func() {
			scanner := bufio.NewScanner(stderr)
			for scanner.Scan() {
				outputCh <- scanner.Text() + "\n"
			}
		})
		wg.Wait()

		if err := cmd.Wait(); err != nil {
			doneCh <- errors.Join(fmt.Errorf("err waiting for command to finish %s", step.Command), err)
			return
		}

		doneCh <- nil
	}()

	select {
	case <-timeoutCtx.Done():
		if timeoutCtx.Err() == context.DeadlineExceeded {
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			// the scanners keep writing to outputCh until the killed
			// process's pipes drain, so wait for them before returning
			<-doneCh
			err := fmt.Errorf(
				"step execution timed out in %d seconds, command: '%s'",
				int(timeout.Seconds()),
				step.Command,
			)
			outputCh <- err.Error() + "\n"
			return GeneratorError{Step: step.Step, Err: err}
		}
		// parent context cancelled, give the generator a chance to
		// clean up on interrupt before killing it
		if cmd.Process != nil {
			_ = cmd.Process.Signal(os.Interrupt)
		}
		select {
		case <-doneCh:
		case <-time.After(cancelGracePeriod):
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			<-doneCh
		}
		message := "step execution cancelled"
		outputCh <- message + "\n"
		return RunCancelError{Message: message}
	case err := <-doneCh:
		if err != nil {
			return GeneratorError{Step: step.Step, Err: err}
		}
		return nil
	}
}
