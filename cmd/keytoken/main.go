package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/keytokenio/keytoken/otp"
	"github.com/keytokenio/keytoken/scp"
	"github.com/keytokenio/keytoken/tlv"
)

var keysFilename string

func checkErr(err error, msg string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s - %s\n", msg, err)
		os.Exit(1)
	}
}

func decodeHexArg(arg string) []byte {
	data, err := hex.DecodeString(strings.ReplaceAll(arg, " ", ""))
	checkErr(err, "Could not decode hex")
	return data
}

func modhexEncode(cmd *cobra.Command, args []string) {
	data := decodeHexArg(args[0])
	cmd.Println(otp.ModhexEncode(data))
}

func modhexDecode(cmd *cobra.Command, args []string) {
	data, err := otp.ModhexDecode(args[0])
	checkErr(err, "Could not decode modhex")
	cmd.Println(hex.EncodeToString(data))
}

func crcCalc(cmd *cobra.Command, args []string) {
	data := decodeHexArg(args[0])
	cmd.Printf("%d (0x%04x)\n", otp.CalculateCrc(data), otp.CalculateCrc(data))
}

func crcCheck(cmd *cobra.Command, args []string) {
	data := decodeHexArg(args[0])
	if otp.CheckCrc(data) {
		cmd.Println("OK")
	} else {
		cmd.Println("FAILED")
		os.Exit(1)
	}
}

func otpParse(cmd *cobra.Command, args []string) {
	data, err := otp.ModhexDecode(args[0])
	if err != nil {
		data = decodeHexArg(args[0])
	}
	token, err := otp.ParseToken(data)
	checkErr(err, "Could not parse token")
	cmd.Printf("uid:             %s\n", hex.EncodeToString(token.Uid[:]))
	cmd.Printf("usage counter:   %d\n", token.UsageCounter)
	cmd.Printf("timestamp:       %d\n", token.Timestamp)
	cmd.Printf("session counter: %d\n", token.SessionCounter)
	cmd.Printf("random:          %d\n", token.Random)
	cmd.Printf("crc:             0x%04x\n", token.Crc)
}

func printTlvs(cmd *cobra.Command, tlvs []tlv.Tlv, indent string) {
	for _, t := range tlvs {
		children, err := tlv.DecodeList(t.Value)
		if err == nil && len(t.Value) > 0 {
			cmd.Printf("%s%02x (%d bytes)\n", indent, t.Tag, len(t.Value))
			printTlvs(cmd, children, indent+"  ")
		} else {
			cmd.Printf("%s%02x: %s\n", indent, t.Tag, hex.EncodeToString(t.Value))
		}
	}
}

func tlvParse(cmd *cobra.Command, args []string) {
	data := decodeHexArg(args[0])
	tlvs, err := tlv.DecodeList(data)
	checkErr(err, "Could not parse TLV data")
	printTlvs(cmd, tlvs, "")
}

type staticKeyFile struct {
	Enc string `yaml:"enc"`
	Mac string `yaml:"mac"`
	Dek string `yaml:"dek"`
}

func loadStaticKeys(filename string) *scp.StaticKeys {
	raw, err := os.ReadFile(filename)
	checkErr(err, "Could not read key file")
	keyFile := staticKeyFile{}
	checkErr(yaml.Unmarshal(raw, &keyFile), "Could not parse key file")
	keys := scp.StaticKeys{
		Enc: decodeHexArg(keyFile.Enc),
		Mac: decodeHexArg(keyFile.Mac),
	}
	if keyFile.Dek != "" {
		keys.DEK = decodeHexArg(keyFile.Dek)
	}
	return &keys
}

func scp03Derive(cmd *cobra.Command, args []string) {
	keys := loadStaticKeys(keysFilename)
	context := decodeHexArg(args[0])
	if len(context) != 16 {
		checkErr(fmt.Errorf("context must be 16 bytes, got %d", len(context)), "Invalid context")
	}
	sessionKeys, err := keys.Derive(context)
	checkErr(err, "Could not derive session keys")
	cmd.Printf("s-enc:  %s\n", hex.EncodeToString(sessionKeys.SEnc))
	cmd.Printf("s-mac:  %s\n", hex.EncodeToString(sessionKeys.SMac))
	cmd.Printf("s-rmac: %s\n", hex.EncodeToString(sessionKeys.SRMac))
	if sessionKeys.DEK != nil {
		cmd.Printf("dek:    %s\n", hex.EncodeToString(sessionKeys.DEK))
	}
	sessionKeys.Zeroize()
}

var rootCmd = &cobra.Command{
	Use:   "keytoken",
	Short: "Security key protocol tools",
	Long:  `Tools to inspect and test security key protocol data`,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	modhexCmd := &cobra.Command{Use: "modhex", Short: "Modhex encoding"}
	modhexCmd.AddCommand(&cobra.Command{
		Use:   "encode [hex]",
		Short: "Encode hex bytes as modhex",
		Args:  cobra.ExactArgs(1),
		Run:   modhexEncode,
	})
	modhexCmd.AddCommand(&cobra.Command{
		Use:   "decode [modhex]",
		Short: "Decode a modhex string to hex",
		Args:  cobra.ExactArgs(1),
		Run:   modhexDecode,
	})
	rootCmd.AddCommand(modhexCmd)

	crcCmd := &cobra.Command{Use: "crc", Short: "CRC13239 checksums"}
	crcCmd.AddCommand(&cobra.Command{
		Use:   "calc [hex]",
		Short: "Calculate the CRC13239 checksum of hex bytes",
		Args:  cobra.ExactArgs(1),
		Run:   crcCalc,
	})
	crcCmd.AddCommand(&cobra.Command{
		Use:   "check [hex]",
		Short: "Verify the trailing CRC13239 checksum of hex bytes",
		Args:  cobra.ExactArgs(1),
		Run:   crcCheck,
	})
	rootCmd.AddCommand(crcCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "otp [token]",
		Short: "Parse a decrypted OTP token (modhex or hex)",
		Args:  cobra.ExactArgs(1),
		Run:   otpParse,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "tlv [hex]",
		Short: "Parse BER-TLV encoded data",
		Args:  cobra.ExactArgs(1),
		Run:   tlvParse,
	})

	scp03Cmd := &cobra.Command{
		Use:   "scp03-derive [context-hex]",
		Short: "Derive SCP03 session keys from static keys and a 16-byte challenge context",
		Args:  cobra.ExactArgs(1),
		Run:   scp03Derive,
	}
	scp03Cmd.Flags().StringVar(&keysFilename, "keys", "keys.yaml", "YAML file with hex enc/mac/dek static keys")
	rootCmd.AddCommand(scp03Cmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
