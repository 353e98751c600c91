package main

import (
	"fmt"
	"sort"
	"strings"

	satocash "github.com/electricdreams/satocash-go"
	"github.com/electricdreams/satocash-go/types"
	"github.com/urfave/cli/v2"
)

func commandStatus(c *cli.Context) error {
	return withCard(c, false, false, func(cs *satocash.CommandSet) error {
		status, err := cs.GetStatus()
		if err != nil {
			return err
		}

		fmt.Printf("AID: %X\n", cs.ApplicationInfo.AID)
		fmt.Printf("Protocol version: %s\n", status.ProtocolVersion)
		fmt.Printf("Applet version: %s\n", status.AppletVersion)
		fmt.Printf("PIN tries remaining: %d\n", status.PINTriesRemaining)
		fmt.Printf("PUK tries remaining: %d\n", status.PUKTriesRemaining)

		if status.Generic {
			fmt.Printf("Applet answered the generic status only\n")
			return nil
		}

		fmt.Printf("Setup done: %v\n", status.SetupDone)
		fmt.Printf("Needs secure channel: %v\n", status.NeedsSecureChannel)
		fmt.Printf("Mints: %d/%d\n", status.Mints, status.MaxMints)
		fmt.Printf("Keysets: %d/%d\n", status.Keysets, status.MaxKeysets)
		if status.HasProofCounters {
			fmt.Printf("Proofs: %d unspent, %d spent, %d max\n", status.UnspentProofs, status.SpentProofs, status.MaxProofs)
		}

		return nil
	})
}

func commandBalance(c *cli.Context) error {
	unit, err := types.ParseUnit(c.String("unit"))
	if err != nil {
		return err
	}

	return withCard(c, true, true, func(cs *satocash.CommandSet) error {
		balance, err := satocash.GetBalance(cs, unit)
		if err != nil {
			return err
		}

		fmt.Printf("%d %s in %d unspent proofs (%d stored)\n", balance.Amount, balance.Unit, balance.UnspentProofs, balance.TotalProofs)

		return nil
	})
}

func commandMints(c *cli.Context) error {
	return withCard(c, true, true, func(cs *satocash.CommandSet) error {
		mints, err := satocash.ListMints(cs)
		if err != nil {
			return err
		}

		indices := make([]int, 0, len(mints))
		for i := range mints {
			indices = append(indices, i)
		}
		sort.Ints(indices)

		for _, i := range indices {
			fmt.Printf("%d: %s\n", i, mints[i])
		}

		return nil
	})
}

func commandKeysets(c *cli.Context) error {
	var indices []uint8
	for _, i := range c.IntSlice("index") {
		if i < 0 || i > 0xFF {
			return fmt.Errorf("keyset index %d out of range", i)
		}

		indices = append(indices, uint8(i))
	}

	return withCard(c, true, true, func(cs *satocash.CommandSet) error {
		keysets, err := cs.ExportKeysets(indices)
		if err != nil {
			return err
		}

		for _, k := range keysets {
			fmt.Printf("%d: id %s, mint %d, unit %s\n", k.Index, k.IDHex(), k.MintIndex, k.Unit)
		}

		return nil
	})
}

func commandProofs(c *cli.Context) error {
	var indices []uint16
	for _, i := range c.IntSlice("index") {
		if i < 0 || i > 0xFFFF {
			return fmt.Errorf("proof index %d out of range", i)
		}

		indices = append(indices, uint16(i))
	}

	return withCard(c, true, true, func(cs *satocash.CommandSet) error {
		proofs, err := cs.ExportProofs(indices)
		if err != nil {
			return err
		}

		for _, p := range proofs {
			state := "spent"
			if p.IsUnspent() {
				state = "unspent"
			}

			fmt.Printf("%d: %s, keyset %d, amount %d, C 0x%x\n", p.Index, state, p.KeysetIndex, p.Amount(), p.UnblindedKey)
		}

		return nil
	})
}

func commandLogs(c *cli.Context) error {
	return withCard(c, true, true, func(cs *satocash.CommandSet) error {
		logs, err := cs.PrintLogs()
		if err != nil {
			return err
		}

		fmt.Printf("%d operations logged, %d available\n", logs.Total, logs.Available)
		for _, e := range logs.Entries {
			fmt.Println(e)
		}

		return nil
	})
}

func commandLabel(c *cli.Context) error {
	label := strings.Join(c.Args().Slice(), " ")

	return withCard(c, true, label != "", func(cs *satocash.CommandSet) error {
		if label != "" {
			return cs.SetCardLabel(label)
		}

		current, err := cs.GetCardLabel()
		if err != nil {
			return err
		}

		fmt.Println(current)

		return nil
	})
}

func commandAuthenticate(c *cli.Context) error {
	return withCard(c, true, false, func(cs *satocash.CommandSet) error {
		pubKey, err := satocash.AuthenticateCard(cs)
		if err != nil {
			return err
		}

		fmt.Printf("card authenticated, PKI public key 0x%x\n", pubKey)

		return nil
	})
}
