package main

import (
	"flag"
	"testing"

	"github.com/CostanzaSiniscalchi/ASL-alphabet-CNN/asl"
)

func TestSettings(t *testing.T) {
	var set settings
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(&set, "set", "")
	if err := fs.Parse([]string{"-set", "Eta=0.01", "-set", "Optimizer=sgd"}); err != nil {
		t.Fatal(err)
	}
	conf, err := set.apply(asl.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if conf.Eta != 0.01 || conf.Optimizer != "sgd" {
		t.Error("got", conf.Eta, conf.Optimizer, "expect 0.01 sgd")
	}
	if err = set.Set("Eta"); err == nil {
		t.Error("expected error for missing value")
	}
	if _, err = (settings{"NoSuchField=1"}).apply(conf); err == nil {
		t.Error("expected error for unknown field")
	}
}
