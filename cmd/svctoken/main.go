// Command svctoken mints a service token for automation callers such as the
// delivery gateway or the settlement scheduler.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	appmw "github.com/shinyyama/tailor-backend/internal/middleware"
	"github.com/shinyyama/tailor-backend/internal/policy"
)

type tokenConfig struct {
	Secret string `env:"SERVICE_TOKEN_SECRET,required"`
}

func main() {
	subject := flag.String("subject", "", "caller id recorded as the token subject")
	role := flag.String("role", string(policy.RoleSystem), "system or admin")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	var cfg tokenConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("config: %v", err)
	}
	tok, err := appmw.NewServiceTokens(cfg.Secret).Mint(*subject, policy.Role(*role), *ttl)
	if err != nil {
		log.Fatalf("mint: %v", err)
	}
	fmt.Fprintln(os.Stdout, tok)
}
