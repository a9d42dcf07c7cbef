package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/posgate/internal/apikey"
	"github.com/dropDatabas3/posgate/internal/config"
	"github.com/dropDatabas3/posgate/internal/observability/logger"
	"github.com/dropDatabas3/posgate/internal/security/keyring"
	"github.com/dropDatabas3/posgate/internal/security/secretbox"
	"github.com/dropDatabas3/posgate/internal/session"
	"github.com/dropDatabas3/posgate/internal/store"
)

type cli struct {
	configPath string
	out        string // json | text
}

func (c *cli) load() (*config.Config, error) {
	return config.Load(c.configPath)
}

func (c *cli) openStores(ctx context.Context, cfg *config.Config, migrate bool) (*store.Stores, error) {
	scfg := store.Config{Driver: cfg.Storage.Driver, DSN: cfg.Storage.DSN}
	scfg.Postgres.MaxConns = 2
	scfg.Postgres.Migrate = migrate || cfg.Storage.Migrate
	return store.Open(ctx, scfg)
}

func (c *cli) print(v any) {
	if c.out == "json" {
		b, _ := json.MarshalIndent(v, "", "  ")
		fmt.Println(string(b))
		return
	}
	switch t := v.(type) {
	case string:
		fmt.Println(t)
	default:
		b, _ := yaml.Marshal(v)
		fmt.Print(string(b))
	}
}

func main() {
	c := &cli{out: envOr("POSGATE_OUT", "text")}
	var envFile string

	root := &cobra.Command{
		Use:           "posgate",
		Short:         "CLI operativa de posgate (claves, API keys, migraciones)",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if envFile != "" {
				_ = godotenv.Load(envFile)
			}
			logger.Init(logger.Config{Env: envOr("POSGATE_ENV", "dev"), Level: "warn"})
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", envOr("POSGATE_CONFIG", ""), "ruta a config.yaml (env POSGATE_CONFIG)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "ruta a .env (opcional)")
	root.PersistentFlags().StringVar(&c.out, "out", c.out, "Formato de salida: json|text")

	root.AddCommand(keysCmd(c), apiKeyCmd(c), secretboxCmd(c), sessionCmd(c), migrateCmd(c), configCmd(c))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// ─── keys ───

func keysCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "keys", Short: "Clave maestra"}
	cmd.AddCommand(&cobra.Command{
		Use:   "gen-master",
		Short: "Genera un SECRETBOX_MASTER_KEY nuevo (32 bytes, base64)",
		RunE: func(cmd *cobra.Command, args []string) error {
			b := make([]byte, 32)
			if _, err := rand.Read(b); err != nil {
				return err
			}
			c.print(base64.StdEncoding.EncodeToString(b))
			return nil
		},
	})
	return cmd
}

// ─── api keys ───

func apiKeyCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Gestión local de API keys (directo contra el storage)"}

	withRegistry := func(fn func(ctx context.Context, reg *apikey.Registry) error) error {
		cfg, err := c.load()
		if err != nil {
			return err
		}
		kr, err := keyring.Parse(cfg.Security.SecretBoxMasterKey)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		st, err := c.openStores(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer st.Close()
		if st.Driver == "memory" {
			fmt.Fprintln(os.Stderr, "warning: storage en memoria; la key no sobrevive a este proceso")
		}
		reg, err := apikey.New(st.APIKeys, kr.APIKeyPepper(), apikey.Options{})
		if err != nil {
			return err
		}
		return fn(ctx, reg)
	}

	var name, scopes, expiresIn string
	create := &cobra.Command{
		Use:   "create",
		Short: "Crea una API key y muestra el secreto una única vez",
		RunE: func(cmd *cobra.Command, args []string) error {
			var exp *time.Time
			if expiresIn != "" {
				d, err := time.ParseDuration(expiresIn)
				if err != nil {
					return fmt.Errorf("--expires-in: %w", err)
				}
				t := time.Now().Add(d).UTC()
				exp = &t
			}
			return withRegistry(func(ctx context.Context, reg *apikey.Registry) error {
				created, err := reg.Generate(ctx, name, splitCSV(scopes), exp)
				if err != nil {
					return err
				}
				c.print(created)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "Nombre descriptivo (requerido)")
	create.Flags().StringVar(&scopes, "scopes", apikey.ScopeAdmin, "Scopes separados por coma")
	create.Flags().StringVar(&expiresIn, "expires-in", "", "Vencimiento relativo (ej. 720h); vacío => sin vencimiento")

	list := &cobra.Command{
		Use:   "list",
		Short: "Lista API keys (sin secretos)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(func(ctx context.Context, reg *apikey.Registry) error {
				keys, err := reg.List(ctx)
				if err != nil {
					return err
				}
				c.print(keys)
				return nil
			})
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoca una API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(func(ctx context.Context, reg *apikey.Registry) error {
				if err := reg.Revoke(ctx, args[0]); err != nil {
					return err
				}
				c.print("revoked " + args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(create, list, revoke)
	return cmd
}

// ─── secretbox ───

func secretboxCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "secretbox", Short: "Cifra/descifra valores con la clave de credenciales"}

	box := func() (*secretbox.Box, error) {
		kr, err := keyring.Parse(os.Getenv("SECRETBOX_MASTER_KEY"))
		if err != nil {
			return nil, err
		}
		return secretbox.New(kr.EncryptionKey())
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "encrypt <plaintext>",
		Short: "Cifra un valor (usa SECRETBOX_MASTER_KEY)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := box()
			if err != nil {
				return err
			}
			enc, err := b.Encrypt(args[0])
			if err != nil {
				return err
			}
			c.print(enc)
			return nil
		},
	}, &cobra.Command{
		Use:   "decrypt <blob>",
		Short: "Descifra un valor producido por encrypt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := box()
			if err != nil {
				return err
			}
			pt, err := b.Decrypt(args[0])
			if err != nil {
				return err
			}
			c.print(pt)
			return nil
		},
	})
	return cmd
}

// ─── session ───

func sessionCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "session", Short: "Tokens de sesión"}

	var subject, email, role string
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Emite un par access/refresh para un sujeto (soporte / pruebas)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(subject) == "" {
				return fmt.Errorf("--subject es requerido")
			}
			cfg, err := c.load()
			if err != nil {
				return err
			}
			kr, err := keyring.Parse(cfg.Security.SecretBoxMasterKey)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			st, err := c.openStores(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer st.Close()

			iss, err := session.New(kr.SessionSeed(), st.RefreshTokens, session.Options{
				Issuer:     cfg.Session.Issuer,
				AccessTTL:  cfg.Session.AccessTTL,
				RefreshTTL: cfg.Session.RefreshTTL,
			})
			if err != nil {
				return err
			}
			id := session.Identity{SubjectID: subject, Email: email, Role: role}
			at, atExp, err := iss.IssueAccessToken(ctx, id)
			if err != nil {
				return err
			}
			rt, rtExp, err := iss.IssueRefreshToken(ctx, id)
			if err != nil {
				return err
			}
			c.print(map[string]any{
				"kid":                iss.KeyID(),
				"access_token":       at,
				"access_expires_at":  atExp.UTC().Format(time.RFC3339),
				"refresh_token":      rt,
				"refresh_expires_at": rtExp.UTC().Format(time.RFC3339),
			})
			return nil
		},
	}
	issue.Flags().StringVar(&subject, "subject", "", "ID del sujeto")
	issue.Flags().StringVar(&email, "email", "", "Email (opcional)")
	issue.Flags().StringVar(&role, "role", "", "Rol (opcional)")

	cmd.AddCommand(issue)
	return cmd
}

// ─── migrate / config ───

func migrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones embebidas de Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.load()
			if err != nil {
				return err
			}
			if cfg.Storage.Driver == "memory" {
				return fmt.Errorf("migrate requiere storage.driver=postgres")
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			st, err := c.openStores(ctx, cfg, true)
			if err != nil {
				return err
			}
			st.Close()
			c.print("migrations applied")
			return nil
		},
	}
}

func configCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Inspección de configuración"}
	cmd.AddCommand(&cobra.Command{
		Use:   "print",
		Short: "Valida y muestra la config efectiva (secretos enmascarados)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.load()
			if err != nil {
				return err
			}
			c.print(cfg.Redacted())
			return nil
		},
	})
	return cmd
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
