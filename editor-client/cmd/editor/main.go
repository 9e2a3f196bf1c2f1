package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"story-draft-server/editor-client/internal/config"
	"story-draft-server/editor-client/internal/localstore"
	"story-draft-server/editor-client/internal/session"
	"story-draft-server/editor-client/internal/syncclient"
	sharedLogger "story-draft-server/shared/logger"
	"story-draft-server/shared/models"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Консольный редактор черновиков: набираемый текст сохраняется локально и
// синхронизируется с сервером точно так же, как это делает веб-редактор.
func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	logger, err := sharedLogger.New(sharedLogger.Config{
		Level:    cfg.LogLevel,
		Encoding: "console",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	backend, err := localstore.NewFileBackend()
	if err != nil {
		logger.Fatal("Failed to initialize local draft storage", zap.Error(err))
	}
	store := localstore.NewStore(backend, logger)
	if err := store.Health(); err != nil {
		logger.Warn("Local draft storage was corrupted, starting from empty state", zap.Error(err))
	}

	// Без адреса сервера работаем полностью офлайн.
	serverURL := cfg.ServerURL
	offline := serverURL == ""
	if offline {
		serverURL = "http://localhost"
	}
	client, err := syncclient.NewClient(serverURL, cfg.AuthToken, store, logger)
	if err != nil {
		logger.Fatal("Failed to initialize sync client", zap.Error(err))
	}
	client.SetOffline(offline)

	ctrl := session.NewController(store, client, session.Options{
		DraftKey:         cfg.DraftKey,
		StoryType:        cfg.StoryType,
		StoryFormat:      cfg.StoryFormat,
		OwnerWallet:      cfg.OwnerWallet,
		OwnerRole:        models.RoleWallet,
		MaxVersions:      cfg.MaxVersions,
		AutosaveInterval: cfg.AutosaveInterval,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl.Start(ctx)
	fmt.Printf("Черновик: %s\n", ctrl.DraftKey())

	var form session.FormState
	if ctrl.State() == session.StateRecoverable {
		if rec := ctrl.RecoveredDraft(); rec != nil {
			fmt.Printf("Найден сохраненный черновик (версия %d). Восстановить? [y/n]: ", rec.Current.Version)
			answer := readLine(os.Stdin)
			if strings.HasPrefix(strings.ToLower(answer), "y") {
				form = ctrl.AcceptRecovery()
				fmt.Printf("--- %s ---\n%s\n", form.Title, form.Content)
			} else {
				ctrl.DiscardRecovery(ctx)
			}
		}
	}

	// Ctrl+C ведет себя как уход со страницы: форсированное сохранение.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		ctrl.NavigateAway(context.Background())
		ctrl.Close()
		os.Exit(0)
	}()

	fmt.Println("Набирайте текст построчно. Команды: :title <t>, :save, :done, :quit")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == ":quit":
			ctrl.NavigateAway(ctx)
			ctrl.Close()
			return
		case line == ":save":
			ctrl.SaveNow(ctx)
			fmt.Printf("Сохранено (%s)\n", ctrl.SyncStatus().State)
		case line == ":done":
			ctrl.Complete(ctx)
			fmt.Println("Черновик завершен и удален")
			return
		case strings.HasPrefix(line, ":title "):
			form.Title = strings.TrimSpace(strings.TrimPrefix(line, ":title "))
			ctrl.SetForm(form)
			ctrl.FieldBlur(ctx)
		default:
			if form.Content == "" {
				form.Content = line
			} else {
				form.Content += "\n" + line
			}
			ctrl.SetForm(form)
		}
	}

	// EOF - тот же уход со страницы
	ctrl.NavigateAway(ctx)
	ctrl.Close()
}

func readLine(f *os.File) string {
	reader := bufio.NewReader(f)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
