package main

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"group-messaging-service/internal/client"
	"group-messaging-service/internal/crypto"
)

// keysCmd は公開鍵ディレクトリを操作するコマンド。
func keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Inspect and rotate public keys in the directory",
	}
	cmd.AddCommand(keysListCmd())
	cmd.AddCommand(keysGetCmd())
	cmd.AddCommand(keysRotateCmd())
	return cmd
}

// fingerprint は公開鍵の短い識別子を返す。
func fingerprint(encoded string) string {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "invalid"
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:8])
}

func keysListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [USER_ID...]",
		Short: "List published public keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := newAPIClient().ListPublicKeys(cmd.Context(), args...)
			if err != nil {
				return err
			}

			if output == "json" {
				return json.NewEncoder(os.Stdout).Encode(keys)
			}

			ids := make([]string, 0, len(keys))
			for id := range keys {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "USER\tFINGERPRINT")
			for _, id := range ids {
				fmt.Fprintf(w, "%s\t%s\n", id, fingerprint(keys[id]))
			}
			return w.Flush()
		},
	}
}

func keysGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get USER_ID",
		Short: "Print a user's public key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := newAPIClient().GetPublicKey(cmd.Context(), args[0])
			if errors.Is(err, client.ErrNotFound) {
				return fmt.Errorf("no public key published for %q", args[0])
			}
			if err != nil {
				return err
			}

			if output == "json" {
				return json.NewEncoder(os.Stdout).Encode(key)
			}
			fmt.Printf("user:        %s\nversion:     %d\nupdated_at:  %s\nfingerprint: %s\n%s\n",
				key.UserID, key.Version, key.UpdatedAt, fingerprint(key.PublicKey), key.PublicKey)
			return nil
		},
	}
}

// keysRotateCmd は新しい鍵ペアを生成してディレクトリの公開鍵を置き換える。
// 古い鍵宛ての過去のメッセージは読めなくなる。
func keysRotateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Generate a new key pair and replace the published public key",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, err := requireUser()
			if err != nil {
				return err
			}
			store, closeStore, err := openKeystore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			kp, err := crypto.GenerateKeyPair()
			if err != nil {
				return err
			}
			pub, err := crypto.EncodePublicKey(kp.Public)
			if err != nil {
				return err
			}

			record, err := newAPIClient().RotatePublicKey(ctx, userID, pub)
			if err != nil {
				return err
			}
			// サーバーへの登録が成功してから手元の鍵を置き換える
			if err := store.Save(ctx, userID, kp); err != nil {
				return fmt.Errorf("public key rotated but saving the new key pair failed: %w", err)
			}

			fmt.Printf("Rotated key for %q (version: %d, fingerprint: %s)\n", userID, record.Version, fingerprint(pub))
			fmt.Fprintln(os.Stderr, "Messages encrypted to the previous key can no longer be decrypted.")
			return nil
		},
	}
}
