package commands

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"p2pmsg/internal/app"
	"p2pmsg/internal/domain"
)

// sessionPrinter renders events published by the core while a listen/dial
// session is live, redrawing the input prompt after each line the way
// _examples/0x5844-goMsg's handleInput does.
type sessionPrinter struct{}

func (sessionPrinter) Notify(ev domain.Event) {
	switch e := ev.(type) {
	case domain.EventPeerConnecting:
		redraw("connecting to %s...", e.Addr)
	case domain.EventHandshakeComplete:
		tag := "pinned"
		if e.FirstContact {
			tag = "first contact, pinned"
		}
		redraw("handshake complete with %s (%s)", e.PeerFingerprint, tag)
	case domain.EventMessageReceived:
		if e.Kind == domain.KindFile {
			redraw("received file %q (%d bytes)", e.FileName, len(e.Body))
		} else {
			redraw("peer: %s", e.Body)
		}
	case domain.EventMessageSent:
		// local echo is already visible from the typed command; nothing to print.
	case domain.EventPeerDisconnected:
		redraw("disconnected: %s", e.Reason)
	case domain.EventError:
		redraw("error[%s]: %s", e.Kind, e.Detail)
	}
}

func redraw(format string, args ...any) {
	fmt.Printf("\r\033[K"+format+"\n> ", args...)
}

// runSession drives the interactive loop documented in doc.go once a
// listen or dial attempt has been started in the background.
func runSession(a *app.App) error {
	a.Bus.Subscribe(sessionPrinter{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		a.Manager.Disconnect()
		os.Exit(0)
	}()

	fmt.Println("Commands: /send <text>, /sendfile <path>, /verify <fingerprint>, /disconnect, /quit")
	fmt.Print("> ")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}
		if line == "/quit" {
			a.Manager.Disconnect()
			return nil
		}
		if err := handleSessionLine(a, line); err != nil {
			fmt.Println("error:", err)
		}
		fmt.Print("> ")
	}
	return scanner.Err()
}

func handleSessionLine(a *app.App, line string) error {
	switch {
	case line == "/disconnect":
		a.Manager.Disconnect()
		return nil
	case strings.HasPrefix(line, "/sendfile "):
		path := strings.TrimSpace(strings.TrimPrefix(line, "/sendfile "))
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return a.Manager.SendFile(filepath.Base(path), content)
	case strings.HasPrefix(line, "/verify "):
		arg := strings.TrimSpace(strings.TrimPrefix(line, "/verify "))
		fp, err := domain.ParseFingerprint(arg)
		if err != nil {
			return err
		}
		return a.Vault.SetVerified(fp, true)
	case strings.HasPrefix(line, "/send "):
		return a.Manager.Send([]byte(strings.TrimPrefix(line, "/send ")))
	default:
		return a.Manager.Send([]byte(line))
	}
}
