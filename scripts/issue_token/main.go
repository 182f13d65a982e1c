package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/mahaj/careerchat/pkg/auth"
	"github.com/mahaj/careerchat/pkg/config"
	"github.com/mahaj/careerchat/pkg/model"
)

// Signs a token with the deployment's JWT secret. The user must already
// exist in the directory (see create_schema -users) for the gate to
// accept it.
func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	user := flag.String("user", "", "user id to sign for")
	role := flag.String("role", string(model.RoleService), "role claim")
	flag.Parse()

	if *user == "" {
		log.Fatal("-user is required")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	token, err := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL).GenerateToken(*user, model.Role(*role))
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(token)
}
