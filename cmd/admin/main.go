package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/classcord/classcord-server/internal/proto"
)

// console is an interactive administration client for the control port.
type console struct {
	conn  net.Conn
	rd    *bufio.Reader
	stdin *bufio.Reader
}

func main() {
	var (
		addr  string
		token string
	)

	root := &cobra.Command{
		Use:           "classcord-admin",
		Short:         "Interactive admin console for a classcord server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(addr, token)
		},
	}
	root.Flags().StringVar(&addr, "addr", "127.0.0.1:12346", "control port address")
	root.Flags().StringVar(&token, "token", "", "admin token (required when the server has admin_secret set)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(addr, token string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	defer conn.Close()

	c := &console{
		conn:  conn,
		rd:    bufio.NewReader(conn),
		stdin: bufio.NewReader(os.Stdin),
	}

	if token != "" {
		reply, err := c.roundTrip(&proto.Frame{Type: proto.TypeAuth, Token: token})
		if err != nil {
			return err
		}
		if reply.Status != proto.StatusOK {
			return fmt.Errorf("authentication failed: %s", reply.Message)
		}
	}

	for {
		users, err := c.fetchUsers()
		if err != nil {
			return err
		}
		printMenu(users)

		choice, err := c.prompt("Choice: ")
		if err != nil {
			return err
		}

		switch choice {
		case "0":
			fmt.Println("Bye.")
			return nil

		case "1":
			// Refresh happens on the next loop iteration.

		case "2":
			if len(users) == 0 {
				fmt.Println("No user to kick.")
				continue
			}
			target, err := c.prompt("Username to kick: ")
			if err != nil {
				return err
			}
			reply, err := c.roundTrip(&proto.Frame{Type: proto.TypeKickUser, Username: target})
			if err != nil {
				return err
			}
			if reply.Type == proto.TypeError {
				fmt.Println("Error:", reply.Message)
			} else {
				fmt.Printf("Kicked %s.\n", target)
			}

		case "3":
			msg, err := c.prompt("Global message: ")
			if err != nil {
				return err
			}
			if msg == "" {
				continue
			}
			reply, err := c.roundTrip(&proto.Frame{Type: proto.TypeGlobalMessage, Content: msg})
			if err != nil {
				return err
			}
			if reply.Type == proto.TypeError {
				fmt.Println("Error:", reply.Message)
			}

		case "4":
			confirm, err := c.prompt("Really shut the server down? (yes/no): ")
			if err != nil {
				return err
			}
			if strings.ToLower(confirm) != "yes" {
				fmt.Println("Cancelled.")
				continue
			}
			if _, err := c.roundTrip(&proto.Frame{Type: proto.TypeShutdown}); err != nil {
				// The server exits right after replying; a short read is fine.
				fmt.Println("Shutdown command sent.")
				return nil
			}
			fmt.Println("Shutdown command sent.")
			return nil

		default:
			fmt.Println("Unknown option.")
		}
	}
}

func (c *console) fetchUsers() ([]string, error) {
	reply, err := c.roundTrip(&proto.Frame{Type: proto.TypeListUsers})
	if err != nil {
		return nil, err
	}
	if reply.Type != proto.TypeListUsers {
		return nil, fmt.Errorf("unexpected reply: %s", reply.Type)
	}
	return reply.Users, nil
}

func (c *console) roundTrip(frame *proto.Frame) (*proto.Frame, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	line, err := c.rd.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	var reply proto.Frame
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &reply); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return &reply, nil
}

func (c *console) prompt(label string) (string, error) {
	fmt.Print(label)
	line, err := c.stdin.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func printMenu(users []string) {
	fmt.Println("\n=== CLASSCORD ADMIN CONSOLE ===")
	if len(users) == 0 {
		fmt.Println("No user connected.")
	} else {
		fmt.Println("Connected users:")
		for _, u := range users {
			fmt.Printf(" - %s\n", u)
		}
	}
	fmt.Println("\nOptions:")
	fmt.Println("1. Refresh list")
	fmt.Println("2. Kick a user")
	fmt.Println("3. Send a global message")
	fmt.Println("4. Shut down the server")
	fmt.Println("0. Quit")
}
