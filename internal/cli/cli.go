// Package cli parses qcvoice command-line arguments.
package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Command string

const (
	CommandStart   Command = "start"
	CommandCapture Command = "capture"
	CommandStop    Command = "stop"
	CommandText    Command = "text"
	CommandConfirm Command = "confirm"
	CommandReset   Command = "reset"
	CommandCancel  Command = "cancel"
	CommandStatus  Command = "status"
	CommandHistory Command = "history"
	CommandVoice   Command = "voice"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandStart:   {},
	CommandCapture: {},
	CommandStop:    {},
	CommandText:    {},
	CommandConfirm: {},
	CommandReset:   {},
	CommandCancel:  {},
	CommandStatus:  {},
	CommandHistory: {},
	CommandVoice:   {},
	CommandDevices: {},
	CommandDoctor:  {},
	CommandVersion: {},
	CommandHelp:    {},
}

// BatchArgs carries the batch context flags accepted by the start command.
type BatchArgs struct {
	Number   string
	Product  string
	Quantity float64
	Unit     string
	Source   string
}

type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool
	Batch      BatchArgs
	Text       string

	// VoiceEnable holds the persisted setting requested by the voice command.
	VoiceEnable bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	i := 0
	for i < len(args) {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
			i++
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
			i++
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
			i++
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}
			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp

			rest := args[i+1:]
			switch cmd {
			case CommandStart:
				batch, err := parseBatchArgs(rest)
				if err != nil {
					return Parsed{}, err
				}
				parsed.Batch = batch
				return parsed, nil
			case CommandText:
				if len(rest) == 0 {
					return Parsed{}, errors.New("text requires an utterance")
				}
				parsed.Text = strings.TrimSpace(strings.Join(rest, " "))
				if parsed.Text == "" {
					return Parsed{}, errors.New("text requires an utterance")
				}
				return parsed, nil
			case CommandVoice:
				if len(rest) != 1 {
					return Parsed{}, errors.New("voice requires exactly one argument: on or off")
				}
				switch rest[0] {
				case "on":
					parsed.VoiceEnable = true
				case "off":
					parsed.VoiceEnable = false
				default:
					return Parsed{}, fmt.Errorf("voice accepts on or off, got %q", rest[0])
				}
				return parsed, nil
			default:
				if len(rest) != 0 {
					return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
				}
				return parsed, nil
			}
		}
	}

	return parsed, nil
}

func parseBatchArgs(args []string) (BatchArgs, error) {
	var batch BatchArgs

	value := func(flag string, i *int) (string, error) {
		*i++
		if *i >= len(args) {
			return "", fmt.Errorf("%s requires a value", flag)
		}
		return args[*i], nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "--batch":
			v, err := value(arg, &i)
			if err != nil {
				return BatchArgs{}, err
			}
			batch.Number = v
		case "--product":
			v, err := value(arg, &i)
			if err != nil {
				return BatchArgs{}, err
			}
			batch.Product = v
		case "--quantity":
			v, err := value(arg, &i)
			if err != nil {
				return BatchArgs{}, err
			}
			quantity, perr := strconv.ParseFloat(v, 64)
			if perr != nil || quantity < 0 {
				return BatchArgs{}, fmt.Errorf("--quantity must be a non-negative number, got %q", v)
			}
			batch.Quantity = quantity
		case "--unit":
			v, err := value(arg, &i)
			if err != nil {
				return BatchArgs{}, err
			}
			batch.Unit = v
		case "--source":
			v, err := value(arg, &i)
			if err != nil {
				return BatchArgs{}, err
			}
			batch.Source = v
		default:
			return BatchArgs{}, fmt.Errorf("unknown start flag: %s", arg)
		}
	}

	if strings.TrimSpace(batch.Number) == "" {
		return BatchArgs{}, errors.New("start requires --batch")
	}
	if strings.TrimSpace(batch.Product) == "" {
		return BatchArgs{}, errors.New("start requires --product")
	}
	return batch, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command>

Commands:
  start     Begin an inspection session for a batch and serve the control socket
              --batch NUMBER --product NAME [--quantity N --unit U --source S]
  capture   Start voice capture for the next inspection turn
  stop      Stop capture and process the recognized utterance
  text      Submit a typed utterance instead of voice
  confirm   Submit the completed inspection record
  reset     Clear the session and restart with the same batch
  cancel    Abandon the session and discard all data
  status    Print session state and recorded-dimension progress
  history   Print the session conversation log
  voice     Persist voice guidance on or off in the config file
  devices   List available input devices
  doctor    Run configuration and environment checks
  version   Print version information
  help      Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/qcvoice/config.conf)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
