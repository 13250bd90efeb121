// Command chat-cli drives the visitor widget or the admin dashboard against running
// servers, one command per line on stdin.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"livechat-backend/internal/client"
	"livechat-backend/internal/dashboard"
	"livechat-backend/internal/dto"
	"livechat-backend/internal/env"
	"livechat-backend/internal/widget"
)

type options struct {
	mode      string
	publicURL string
	adminURL  string
	wsURL     string
	tokenFile string
	locale    string
	email     string
	password  string
}

func main() {
	env.Load()

	home, _ := os.UserHomeDir()
	opts := options{}
	flag.StringVar(&opts.mode, "mode", "visitor", "visitor or admin")
	flag.StringVar(&opts.publicURL, "public-url", env.GetOrDefault("CHAT_PUBLIC_URL", "http://localhost:82/api/public/v1"), "visitor API base URL")
	flag.StringVar(&opts.adminURL, "admin-url", env.GetOrDefault("CHAT_ADMIN_URL", "http://localhost:81/api/admin/v1"), "admin API base URL")
	flag.StringVar(&opts.wsURL, "ws-url", env.GetOrDefault("CHAT_WS_URL", "ws://localhost:83/api/ws/v1"), "websocket base URL")
	flag.StringVar(&opts.tokenFile, "token-file", filepath.Join(home, ".livechat", "session"), "where the visitor session token is kept")
	flag.StringVar(&opts.locale, "locale", widget.DefaultLocale, "visitor greeting locale")
	flag.StringVar(&opts.email, "email", env.Get(env.AdminEmail), "admin email")
	flag.StringVar(&opts.password, "password", env.Get(env.AdminPassword), "admin password")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch opts.mode {
	case "visitor":
		err = runVisitor(ctx, opts, os.Stdin, os.Stdout)
	case "admin":
		err = runAdmin(ctx, opts, os.Stdin, os.Stdout)
	default:
		err = fmt.Errorf("unknown mode %q", opts.mode)
	}
	if err != nil {
		log.Fatal(err)
	}
}

// lines feeds stdin to the command loop and stops with ctx.
func lines(ctx context.Context, in io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case out <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func runVisitor(ctx context.Context, opts options, in io.Reader, out io.Writer) error {
	r := newRenderer(out)
	w := widget.New(
		client.NewHTTPVisitor(opts.publicURL, opts.wsURL, nil),
		widget.NewFileTokenStore(opts.tokenFile),
		widget.Config{Locale: opts.locale, OnChange: r.visitor},
	)
	defer w.Close()

	if err := w.Mount(ctx); err != nil {
		r.printf("mount: %v\n", err)
	}
	r.printf("commands: /identify <name> <email>, /read, /quit; anything else is sent\n")

	input := lines(ctx, in)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-input:
			if !ok {
				return nil
			}
			cmd, args := splitCommand(line)
			var err error
			switch cmd {
			case "/quit":
				return nil
			case "/identify":
				if len(args) < 2 {
					r.printf("usage: /identify <name> <email>\n")
					continue
				}
				name := strings.Join(args[:len(args)-1], " ")
				err = w.Identify(ctx, name, args[len(args)-1])
			case "/read":
				err = w.MarkRead(ctx)
			default:
				if w.View().State != widget.StateActive {
					r.printf("identify first: /identify <name> <email>\n")
					continue
				}
				err = w.Send(ctx, line)
			}
			if err != nil {
				r.printf("error: %v\n", err)
			}
		}
	}
}

func runAdmin(ctx context.Context, opts options, in io.Reader, out io.Writer) error {
	auth, err := client.Login(ctx, opts.adminURL, opts.email, opts.password, nil)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	r := newRenderer(out)
	confirmed := false
	d := dashboard.New(
		client.NewHTTPAdmin(opts.adminURL, opts.wsURL, auth.AccessToken, nil),
		dashboard.Config{
			AdminName: auth.Admin.Name,
			OnChange:  r.dashboard,
			Confirm: func(context.Context, dto.SessionSummary) bool {
				return confirmed
			},
		},
	)
	if err := d.Start(ctx); err != nil {
		return err
	}
	defer d.Stop()

	r.printf("signed in as %s\n", auth.Admin.Email)
	r.printf("commands: /filter <active|closed|all>, /open <id>, /leave, /close <id>, /delete <id> yes, /quit; anything else replies\n")

	input := lines(ctx, in)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-input:
			if !ok {
				return nil
			}
			cmd, args := splitCommand(line)
			var err error
			switch cmd {
			case "/quit":
				return nil
			case "/filter":
				var f dashboard.Filter
				if f, err = dashboard.ParseFilter(strings.Join(args, "")); err == nil {
					err = d.SetFilter(ctx, f)
				}
			case "/open":
				if len(args) != 1 {
					r.printf("usage: /open <id>\n")
					continue
				}
				err = d.Open(ctx, args[0])
			case "/leave":
				d.CloseConversation()
			case "/close":
				if len(args) != 1 {
					r.printf("usage: /close <id>\n")
					continue
				}
				err = d.CloseSession(ctx, args[0])
			case "/delete":
				if len(args) == 0 {
					r.printf("usage: /delete <id> yes\n")
					continue
				}
				confirmed = len(args) == 2 && args[1] == "yes"
				var deleted bool
				deleted, err = d.DeleteSession(ctx, args[0])
				if err == nil && !deleted {
					r.printf("not deleted; repeat with: /delete %s yes\n", args[0])
				}
			default:
				err = d.Reply(ctx, line)
			}
			if err != nil {
				r.printf("error: %v\n", err)
			}
		}
	}
}

func splitCommand(line string) (string, []string) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return "", nil
	}
	fields := strings.Fields(trimmed)
	return fields[0], fields[1:]
}
