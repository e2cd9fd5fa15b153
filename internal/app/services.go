package app

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/joho/godotenv"

	"github.com/vk/conveyor/internal/artifact"
	"github.com/vk/conveyor/internal/gitrepo"
	"github.com/vk/conveyor/internal/publish"
	"github.com/vk/conveyor/internal/registry"
	"github.com/vk/conveyor/internal/release"
)

// Secret names the app itself consumes. Everything else in the secrets
// file is only exposed to pipeline expressions.
const (
	secretRegistryAPIKey = "REGISTRY_API_KEY"
	secretReleaseToken   = "RELEASE_TOKEN"
	secretGitToken       = "GIT_TOKEN"
	secretGitAuthorName  = "GIT_AUTHOR_NAME"
	secretGitAuthorEmail = "GIT_AUTHOR_EMAIL"
)

// loadSecrets reads the dotenv secrets file. A missing configuration is
// not an error; pipelines that need no secrets run without one.
func (a *App) loadSecrets() (map[string]string, error) {
	if a.cfg.SecretsFile == "" {
		return map[string]string{}, nil
	}
	secrets, err := godotenv.Read(a.cfg.SecretsFile)
	if err != nil {
		return nil, fmt.Errorf("reading secrets file %s: %w", a.cfg.SecretsFile, err)
	}
	a.logger.Debug("Secrets loaded.", "file", a.cfg.SecretsFile, "count", len(secrets))
	return secrets, nil
}

// buildServices assembles the shared action backends from the app config
// and the loaded secrets. The returned closer releases the HTTP clients.
func (a *App) buildServices(secrets map[string]string) (*registry.Services, func(), error) {
	svc := &registry.Services{}
	var closers []func()

	if a.cfg.RepoPath != "" {
		ident := gitrepo.Identity{Name: "conveyor", Email: "conveyor@localhost"}
		if name := secrets[secretGitAuthorName]; name != "" {
			ident.Name = name
		}
		if email := secrets[secretGitAuthorEmail]; email != "" {
			ident.Email = email
		}
		var auth transport.AuthMethod
		if token := secrets[secretGitToken]; token != "" {
			auth = &githttp.BasicAuth{Username: "conveyor", Password: token}
		}
		store, err := gitrepo.Open(a.cfg.RepoPath, a.cfg.Remote, ident, auth)
		if err != nil {
			return nil, nil, err
		}
		svc.Tags = store
	}

	if a.cfg.ArtifactDir != "" {
		store, err := artifact.NewStore(a.cfg.ArtifactDir, a.cfg.ArtifactRetention)
		if err != nil {
			return nil, nil, err
		}
		svc.Artifacts = store
	}

	if a.cfg.RegistryURL != "" {
		client := publish.New(publish.Options{
			IndexURL: a.cfg.RegistryURL,
			APIKey:   secrets[secretRegistryAPIKey],
		})
		svc.Packages = client
		closers = append(closers, func() { _ = client.Close() })
	}

	if a.cfg.ReleaseURL != "" {
		client := release.NewClient(a.cfg.ReleaseURL, secrets[secretReleaseToken])
		svc.Releases = client
		closers = append(closers, func() { _ = client.Close() })
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	return svc, closeAll, nil
}
