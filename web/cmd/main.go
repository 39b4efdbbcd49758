package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"

	"pctasks/app/blob"
	"pctasks/app/config"
	"pctasks/app/db"
	"pctasks/app/executor"
	"pctasks/app/store"
	"pctasks/app/taskrun"
	"pctasks/pkg/log"
	"pctasks/plugins"
	"pctasks/web/handles"
)

func main() {
	configFile := flag.String("config", "", "path to config.ini")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(err)
	}
	if err := log.Initialize(cfg.LOG); err != nil {
		panic(err)
	}
	log.Info(nil, "Start running dev task endpoint...")

	blobs, err := blob.New(context.Background(), cfg.Blob)
	if err != nil {
		log.Error(nil, err)
		panic(err)
	}
	conn, err := db.Open(cfg.RecordStore)
	if err != nil {
		log.Error(nil, err)
		panic(err)
	}
	defer db.Close(conn)

	plugins.RegisterBuiltinTasks()
	harness := &taskrun.Harness{Blobs: blobs, Records: store.NewContainers(store.New(conn))}
	router := handles.NewRouter(handles.NewTaskHandles(executor.NewLocalExecutor(harness)))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Error(nil, http.ListenAndServe(addr, router))
}
