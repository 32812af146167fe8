package main

import (
	"fmt"

	"github.com/CostanzaSiniscalchi/ASL-alphabet-CNN/asl"
	"github.com/CostanzaSiniscalchi/ASL-alphabet-CNN/nnet"
)

func main() {
	conf := asl.DefaultConfig()
	fmt.Println(conf)
	err := conf.SaveDefault("asl_cnn")
	nnet.CheckErr(err)
}
