package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/clinicauth"
	"github.com/MrEthical07/clinicauth/config"
	"github.com/MrEthical07/clinicauth/envelope"
	"github.com/MrEthical07/clinicauth/otp"
	"github.com/MrEthical07/clinicauth/password"
	"github.com/MrEthical07/clinicauth/pgstore"
	"github.com/google/uuid"
)

func loadEncrypter(configPath string) (*envelope.Encrypter, *config.Settings, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	specs, primary := settings.Encryption.KeySpecs()
	if len(specs) == 0 {
		return nil, nil, errors.New("no encryption keys configured (DATA_ENCRYPTION_KEYS or DATA_ENCRYPTION_KEY)")
	}
	ring, err := envelope.NewKeyRing(specs, primary)
	if err != nil {
		return nil, nil, err
	}
	return envelope.New(ring), settings, nil
}

// eachLine applies fn to every non-empty stdin line and prints the result.
func eachLine(in io.Reader, out io.Writer, fn func(string) (string, error)) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		v, err := fn(line)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(out, v); err != nil {
			return err
		}
	}
	return sc.Err()
}

func runEncrypt(args []string) error {
	fs := flag.NewFlagSet("encrypt", flag.ExitOnError)
	configPath := fs.String("config", "", "config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	enc, _, err := loadEncrypter(*configPath)
	if err != nil {
		return err
	}
	return eachLine(os.Stdin, os.Stdout, enc.Encrypt)
}

func runDecrypt(args []string) error {
	fs := flag.NewFlagSet("decrypt", flag.ExitOnError)
	configPath := fs.String("config", "", "config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	enc, _, err := loadEncrypter(*configPath)
	if err != nil {
		return err
	}
	return eachLine(os.Stdin, os.Stdout, func(v string) (string, error) {
		plain, ok := enc.DecryptChecked(v)
		if !ok {
			return "", errors.New("value could not be decrypted with any configured key")
		}
		return plain, nil
	})
}

func runRewrap(args []string) error {
	fs := flag.NewFlagSet("rewrap", flag.ExitOnError)
	configPath := fs.String("config", "", "config file")
	useDB := fs.Bool("db", false, "rewrap users.mfa_secret in the configured database instead of stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	enc, settings, err := loadEncrypter(*configPath)
	if err != nil {
		return err
	}

	if !*useDB {
		return eachLine(os.Stdin, os.Stdout, func(v string) (string, error) {
			out, _, err := enc.Rewrap(v)
			return out, err
		})
	}

	if settings.Store.DatabaseURL == "" {
		return errors.New("store.database_url required with -db")
	}
	pool, err := connectDB(settings.Store.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	n, err := pgstore.NewUserStore(pool, enc).RewrapSecrets(ctx, enc)
	if err != nil {
		return err
	}
	fmt.Printf("rewrapped %d secrets under %s\n", n, enc.Ring().PrimaryID())
	return nil
}

func runAddUser(args []string) error {
	fs := flag.NewFlagSet("add-user", flag.ExitOnError)
	configPath := fs.String("config", "", "config file")
	email := fs.String("email", "", "login email")
	role := fs.String("role", string(clinicauth.RolePatient), "doctor, patient or admin")
	pw := fs.String("password", "", "initial password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r := clinicauth.Role(strings.ToLower(strings.TrimSpace(*role)))
	if !r.Valid() {
		return fmt.Errorf("unknown role %q", *role)
	}
	addr := strings.ToLower(strings.TrimSpace(*email))
	if addr == "" || *pw == "" {
		return errors.New("-email and -password are required")
	}

	settings, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if settings.Store.DatabaseURL == "" {
		return errors.New("store.database_url required")
	}

	d := clinicauth.DefaultConfig().Password
	hasher, err := password.NewHasher(password.Config{
		Memory:      d.Memory,
		Time:        d.Time,
		Parallelism: d.Parallelism,
		SaltLength:  d.SaltLength,
		KeyLength:   d.KeyLength,
	})
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(*pw)
	if err != nil {
		return err
	}

	cipher, err := buildCipher(settings.EngineConfig())
	if err != nil {
		return err
	}
	pool, err := connectDB(settings.Store.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	store := pgstore.NewUserStore(pool, cipher)
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	id := uuid.NewString()
	if err := store.Insert(ctx, clinicauth.Principal{
		ID:           id,
		Email:        addr,
		Role:         r,
		PasswordHash: hash,
	}); err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func runTOTPCode(args []string) error {
	fs := flag.NewFlagSet("totp-code", flag.ExitOnError)
	secret := fs.String("secret", "", "base32 TOTP secret")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *secret == "" {
		return errors.New("-secret is required")
	}

	m, err := otp.New(otp.DefaultConfig())
	if err != nil {
		return err
	}
	code, err := m.Code(*secret, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(code)
	return nil
}
