package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/term"

	"github.com/credvault/credvault/auth"
	"github.com/credvault/credvault/internal/accounts"
	"github.com/credvault/credvault/internal/config"
	"github.com/credvault/credvault/krypto"
	"github.com/credvault/credvault/store"
)

const cliVersion = "0.1.0"

type userError struct {
	msg string
}

func (e userError) Error() string { return e.msg }

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Println(cliVersion)
	case "analyze":
		if err := runAnalyze(); err != nil {
			handleError(err)
		}
	case "encrypt":
		if err := runEncrypt(os.Args[2:]); err != nil {
			handleError(err)
		}
	case "decrypt":
		if err := runDecrypt(os.Args[2:]); err != nil {
			handleError(err)
		}
	case "register":
		if err := runRegister(os.Args[2:]); err != nil {
			handleError(err)
		}
	case "login":
		if err := runLogin(os.Args[2:]); err != nil {
			handleError(err)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func handleError(err error) {
	if err == nil {
		return
	}

	var uerr userError
	if errors.As(err, &uerr) {
		fmt.Fprintln(os.Stderr, uerr.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "unexpected error: %v\n", err)
	os.Exit(2)
}

func newEngine() (*krypto.Engine, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	engine := krypto.New(krypto.Config{
		Iterations: cfg.Crypto.Iterations,
		KeyBits:    cfg.Crypto.KeyBits,
		SaltLen:    cfg.Crypto.SaltLength,
		NonceLen:   cfg.Crypto.NonceLength,
	})
	return engine, cfg, nil
}

func runAnalyze() error {
	pw, err := promptPassword("Password to analyze: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	defer zeroBytes(pw)

	report := auth.Analyze(string(pw))
	fmt.Printf("score:      %d/100 (%s)\n", report.Score, report.Label)
	fmt.Printf("entropy:    %.1f bits\n", report.EntropyBits)
	fmt.Printf("crack time: %s\n", report.CrackTime)
	fmt.Printf("zxcvbn:     %d/4\n", report.ZXCVBNScore)
	for _, note := range report.Feedback {
		fmt.Printf("  - %s\n", note)
	}
	return nil
}

func runEncrypt(args []string) error {
	fs := flag.NewFlagSet("encrypt", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var in, out string
	fs.StringVar(&in, "in", "", "plaintext file ('-' for stdin)")
	fs.StringVar(&out, "out", "", "envelope name (stored under the data dir)")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if in == "" || out == "" {
		return userError{msg: "missing required flags: --in and --out"}
	}
	if fs.NArg() != 0 {
		return userError{msg: "unexpected positional arguments"}
	}

	plaintext, err := readInput(in)
	if err != nil {
		return err
	}
	defer zeroBytes(plaintext)

	engine, cfg, err := newEngine()
	if err != nil {
		return err
	}
	defer engine.Purge()

	pw, err := promptPassword("Enter password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	defer zeroBytes(pw)

	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return fmt.Errorf("read confirmation password: %w", err)
	}
	defer zeroBytes(confirm)

	if !bytes.Equal(pw, confirm) {
		return userError{msg: "passwords do not match"}
	}

	env, err := engine.Encrypt(string(plaintext), string(pw))
	if err != nil {
		return userError{msg: "encryption failed; nothing was written"}
	}

	paths := store.Paths{Dir: cfg.DataDir}
	if err := store.SaveEnvelope(paths, out, env); err != nil {
		return fmt.Errorf("save envelope: %w", err)
	}

	fmt.Printf("encrypted to %s\n", filepath.Join(cfg.DataDir, out))
	return nil
}

func runDecrypt(args []string) error {
	fs := flag.NewFlagSet("decrypt", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var in string
	fs.StringVar(&in, "in", "", "envelope name (under the data dir)")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if in == "" {
		return userError{msg: "missing required flag: --in"}
	}
	if fs.NArg() != 0 {
		return userError{msg: "unexpected positional arguments"}
	}

	engine, cfg, err := newEngine()
	if err != nil {
		return err
	}
	defer engine.Purge()

	paths := store.Paths{Dir: cfg.DataDir}
	env, err := store.LoadEnvelope(paths, in)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return userError{msg: "envelope not found"}
		}
		return err
	}

	pw, err := promptPassword("Enter password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	defer zeroBytes(pw)

	plaintext, err := engine.Decrypt(env, string(pw))
	if err != nil {
		// Deliberately indistinguishable: wrong password and corrupted
		// data surface the same way.
		return userError{msg: "failed to decrypt: invalid password or corrupted data"}
	}

	fmt.Print(plaintext)
	return nil
}

func runRegister(args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var email string
	fs.StringVar(&email, "email", "", "account email")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if email == "" {
		return userError{msg: "missing required flag: --email"}
	}
	if fs.NArg() != 0 {
		return userError{msg: "unexpected positional arguments"}
	}

	_, cfg, err := newEngine()
	if err != nil {
		return err
	}

	pw, err := promptPassword("Master password: ")
	if err != nil {
		return fmt.Errorf("read master password: %w", err)
	}
	defer zeroBytes(pw)

	confirm, err := promptPassword("Confirm master password: ")
	if err != nil {
		return fmt.Errorf("read confirmation password: %w", err)
	}
	defer zeroBytes(confirm)

	if !bytes.Equal(pw, confirm) {
		return userError{msg: "passwords do not match"}
	}

	opts := auth.DefaultValidateOptions()
	opts.EnableHIBP = true
	if err := auth.ValidateMasterPassword(context.Background(), string(pw), opts); err != nil {
		return userError{msg: err.Error()}
	}

	record, keys, err := auth.RegisterUser(email, string(pw))
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	defer keys.EncryptionKey.Zero()

	db, err := accounts.Open(filepath.Join(cfg.DataDir, "accounts.db"))
	if err != nil {
		return fmt.Errorf("open accounts database: %w", err)
	}
	defer db.Close()

	if err := db.CreateUser(record); err != nil {
		return fmt.Errorf("store account: %w", err)
	}

	fmt.Printf("registered %s\n", record.Email)
	return nil
}

func runLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var email string
	var device string
	fs.StringVar(&email, "email", "", "account email")
	fs.StringVar(&device, "trust-device", "", "optionally record this device name as trusted")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if email == "" {
		return userError{msg: "missing required flag: --email"}
	}
	if fs.NArg() != 0 {
		return userError{msg: "unexpected positional arguments"}
	}

	_, cfg, err := newEngine()
	if err != nil {
		return err
	}

	db, err := accounts.Open(filepath.Join(cfg.DataDir, "accounts.db"))
	if err != nil {
		return fmt.Errorf("open accounts database: %w", err)
	}
	defer db.Close()

	record, err := db.GetUser(email)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return userError{msg: "invalid credentials"}
		}
		return err
	}

	pw, err := promptPassword("Master password: ")
	if err != nil {
		return fmt.Errorf("read master password: %w", err)
	}
	defer zeroBytes(pw)

	encKey, err := auth.AuthenticateUser(email, string(pw), record)
	if err != nil {
		return userError{msg: "invalid credentials"}
	}
	defer encKey.Zero()

	if err := db.Touch(record.Email); err != nil {
		return fmt.Errorf("update account: %w", err)
	}

	if device != "" {
		d, err := db.AddTrustedDevice(record.Email, device)
		if err != nil {
			return fmt.Errorf("trust device: %w", err)
		}
		fmt.Printf("trusted device %s (%s)\n", d.Name, d.ID)
	}

	fmt.Printf("signed in as %s; encryption key held for this session only\n", record.Email)
	return nil
}

func readInput(in string) ([]byte, error) {
	if in == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return nil, fmt.Errorf("read input file: %w", err)
	}
	return data, nil
}

func promptPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: cv <command>")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  version")
	fmt.Fprintln(os.Stderr, "  analyze")
	fmt.Fprintln(os.Stderr, "  encrypt --in <file|-> --out <name>")
	fmt.Fprintln(os.Stderr, "  decrypt --in <name>")
	fmt.Fprintln(os.Stderr, "  register --email <email>")
	fmt.Fprintln(os.Stderr, "  login --email <email> [--trust-device <name>]")
}
