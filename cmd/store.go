package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/linkbag/linkbag"
	"github.com/leftmike/linkbag/storage/bagstore"
	"github.com/leftmike/linkbag/storage/keyval"
	"github.com/leftmike/linkbag/txn"
)

func openStore() (*bagstore.Store, error) {
	kv, err := keyval.Open(*store, *dataDir, log.StandardLogger())
	if err != nil {
		return nil, fmt.Errorf("linkbag: %s", err)
	}
	st, err := bagstore.Open(kv)
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("linkbag: %s", err)
	}
	return st, nil
}

func txnOptions() (txn.Options, error) {
	ck, err := linkbag.ParseContainerKind(*container)
	if err != nil {
		return txn.Options{}, fmt.Errorf("linkbag: %s", err)
	}
	return txn.Options{
		MaxCounter:     *counterMax,
		Container:      ck,
		EmbeddedToTree: *embeddedToTree,
		TreeToEmbedded: *treeToEmbedded,
	}, nil
}
