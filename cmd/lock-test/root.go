package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
)

const defaultBlockedDelay = 2 * time.Second

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	var delay time.Duration
	cmd := &cobra.Command{
		Use:           "lock-test <database-path>",
		Short:         "A simple test for the database write lock",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return lockTest(in, out, args[0], delay)
		},
	}
	cmd.Flags().DurationVar(&delay, "blocked-delay", defaultBlockedDelay, "How long to wait for the lock before reporting \"blocked\"")
	return cmd
}

// console serialises lines written from the main flow and the blocked notifier.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func (c *console) say(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, line)
}

// blockedNotifier prints "blocked" once if the lock is still not held after a delay.
type blockedNotifier struct {
	mu      sync.Mutex
	blocked bool
	timer   *time.Timer
	con     *console
}

func newBlockedNotifier(con *console, delay time.Duration) *blockedNotifier {
	n := &blockedNotifier{blocked: true, con: con}
	n.timer = time.AfterFunc(delay, n.fire)
	return n
}

func (n *blockedNotifier) fire() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.blocked {
		n.con.say("blocked")
	}
}

// notBlocked returns once a concurrent "blocked" line, if any, has been written.
func (n *blockedNotifier) notBlocked() {
	n.timer.Stop()
	n.mu.Lock()
	n.blocked = false
	n.mu.Unlock()
}

func lockTest(in io.Reader, out io.Writer, dbPath string, delay time.Duration) error {
	con := &console{out: out}
	input := bufio.NewReader(in)

	con.say("start")

	db, err := os.OpenFile(dbPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	lock := flock.New(dbPath + ".lock")
	defer lock.Close()

	con.say("pre-lock")
	if err := waitInput(input); err != nil {
		return err
	}

	notifier := newBlockedNotifier(con, delay)
	err = lock.Lock()
	notifier.notBlocked()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}

	con.say("holding-lock")
	if err := waitInput(input); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(db, "commit pid=%d at=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if err := db.Sync(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if err := lock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}

	con.say("done")
	return nil
}

// waitInput consumes one line from stdin.
func waitInput(r *bufio.Reader) error {
	line, err := r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && strings.TrimSpace(line) != "" {
			return nil
		}
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}
