package satocash

import "github.com/ethereum/go-ethereum/log"

var logger = log.New("package", "satocash")
